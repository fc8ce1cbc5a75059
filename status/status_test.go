package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		code  int
		class Class
	}{
		{"load firmware success", LoadFirmwareSuccess, ClassSuccess},
		{"token download success", TokenDownloadSuccess, ClassSuccess},
		{"create pin success", CreatePINSuccess, ClassSuccess},
		{"create pin failed", CreatePINFailed, ClassDefinedFailure},
		{"check pin failed", CheckPINFailed, ClassDefinedFailure},
		{"push register success", PushRegisterSuccess, ClassSuccess},
		{"cert register success", CertRegisterSuccess, ClassSuccess},
		{"connection failed", ConnectionFailed, ClassDefinedFailure},
		{"undocumented code", 99999, ClassUnknown},
		{"zero", 0, ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Classify(tt.code)
			assert.Equal(t, tt.class, out.Class)
			assert.Equal(t, tt.code, out.Code)
		})
	}
}

func TestClassifyAdvances(t *testing.T) {
	assert.True(t, Classify(LoadFirmwareSuccess).Advances())
	assert.False(t, Classify(CreatePINFailed).Advances(), "defined failures must not advance")
	assert.False(t, Classify(99999).Advances(), "unknown codes must not advance")
}

func TestClassifyUnknownIsNotFatal(t *testing.T) {
	out := Classify(41099)
	assert.Equal(t, ClassUnknown, out.Class)
	assert.NotEqual(t, ClassDefinedFailure, out.Class, "unknown must stay distinguishable from defined failures")
	assert.Equal(t, 41099, out.Code, "raw code must be preserved for diagnosis")
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "Code: 40608, Message: Load Firmware Success", Classify(40608).String())
	assert.Equal(t, "Code: 99999, Message: Unknown Status", Classify(99999).String())
}
