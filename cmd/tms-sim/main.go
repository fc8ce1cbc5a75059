// tms-sim is a stand-in token management server for local runs of the
// provisioner. It accepts the user-create and token-assign calls and hands
// out fresh identifiers; nothing is persisted.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/sistema-id/smarttoken-provisioning/cmd/flags"
	"github.com/sistema-id/smarttoken-provisioning/interfaces"
)

func main() {
	app := &cli.App{
		Name:  "tms-sim",
		Usage: "In-memory token management server for local provisioning runs",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "listen-addr",
				Value: "127.0.0.1:9080",
				Usage: "address to listen on",
			},
		}, flags.CommonFlags...),
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	listenAddr := cCtx.String("listen-addr")

	mux := chi.NewRouter()
	mux.Use(func(next http.Handler) http.Handler {
		return httplogger.LoggingMiddlewareSlog(logger, next)
	})

	mux.Post("/tms/user/create", func(w http.ResponseWriter, r *http.Request) {
		var req interfaces.UserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		id := uuid.NewString()
		logger.Info("User created", "id", id, "userId", req.UserID, "customerId", req.CustomerID)
		writeJSON(w, map[string]string{"id": id})
	})

	mux.Post("/tms/token/assign", func(w http.ResponseWriter, r *http.Request) {
		var req interfaces.TokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		apin := make([]byte, 4)
		if _, err := rand.Read(apin); err != nil {
			http.Error(w, "entropy unavailable", http.StatusInternalServerError)
			return
		}
		assignment := interfaces.TokenAssignment{
			Token: fmt.Sprintf("TK-%s", uuid.NewString()[:8]),
			APIN:  base64.StdEncoding.EncodeToString(apin),
		}
		logger.Info("Token assigned", "token", assignment.Token, "userId", req.ID)
		writeJSON(w, assignment)
	})

	logger.Info("Starting TMS simulator", "listenAddress", listenAddr)
	return http.ListenAndServe(listenAddr, mux)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
