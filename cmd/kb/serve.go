package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"call-kb-go/internal/config"
	"call-kb-go/internal/ledger"
	"call-kb-go/internal/logger"
	"call-kb-go/internal/pairs"
	"call-kb-go/internal/store"
	"call-kb-go/internal/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the review API",
	Long: `Serves the thin HTTP backend the review front end talks to. The front end
never touches files directly; it reads entries here and posts corrections.

  GET  /healthz
  GET  /kb                 current KB entries
  GET  /pairs              flat Q/A export rows
  POST /corrections        {"entry_id","new_answer","reason","confirm"}
  POST /corrections/undo`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		log := logger.New()
		l := ledgerFor(cfg)

		// Crash-recovery pass before serving any mutation.
		if repaired, err := l.Recover(); err != nil {
			return err
		} else if repaired {
			log.Warn("recovered a half-applied correction at startup")
		}

		mux := http.NewServeMux()

		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			logger.New().WithRequest(r).Info("health check")
			fmt.Fprint(w, "ok")
		})

		mux.HandleFunc("/kb", func(w http.ResponseWriter, r *http.Request) {
			reqLog := logger.New().WithRequest(r).WithField("handler", "kb")
			var entries []types.KBEntry
			if err := store.ReadJSON(kbJSONPath(cfg), &entries); err != nil {
				reqLog.WithError(err).Error("kb load failed")
				http.Error(w, "kb not available", http.StatusInternalServerError)
				return
			}
			writeJSON(w, reqLog, entries)
		})

		mux.HandleFunc("/pairs", func(w http.ResponseWriter, r *http.Request) {
			reqLog := logger.New().WithRequest(r).WithField("handler", "pairs")
			rows, err := pairs.ReadJSONL(nluPath(cfg))
			if err != nil {
				reqLog.WithError(err).Error("pairs load failed")
				http.Error(w, "pairs not available", http.StatusInternalServerError)
				return
			}
			writeJSON(w, reqLog, rows)
		})

		mux.HandleFunc("/corrections", func(w http.ResponseWriter, r *http.Request) {
			reqLog := logger.New().WithRequest(r).WithField("handler", "corrections")
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			var req struct {
				EntryID   string `json:"entry_id"`
				NewAnswer string `json:"new_answer"`
				Reason    string `json:"reason"`
				Confirm   bool   `json:"confirm"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EntryID == "" {
				reqLog.Warn("bad correction request")
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			var (
				record types.Correction
				err    error
			)
			if req.Confirm {
				record, err = l.Confirm(req.EntryID, req.Reason)
			} else {
				record, err = l.Apply(req.EntryID, req.NewAnswer, req.Reason)
			}
			if err != nil {
				reqLog.WithError(err).Warn("correction failed")
				status := http.StatusInternalServerError
				if errors.Is(err, ledger.ErrEntryNotFound) {
					status = http.StatusNotFound
				}
				http.Error(w, err.Error(), status)
				return
			}
			writeJSON(w, reqLog, record)
		})

		mux.HandleFunc("/corrections/undo", func(w http.ResponseWriter, r *http.Request) {
			reqLog := logger.New().WithRequest(r).WithField("handler", "undo")
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			record, err := l.UndoLast()
			if err != nil {
				reqLog.WithError(err).Warn("undo failed")
				status := http.StatusInternalServerError
				if errors.Is(err, ledger.ErrNothingToUndo) {
					status = http.StatusConflict
				}
				http.Error(w, err.Error(), status)
				return
			}
			writeJSON(w, reqLog, record)
		})

		addr := fmt.Sprintf(":%s", envOr("PORT", "8080"))
		srv := &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		}
		log.WithField("addr", addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	},
}

func writeJSON(w http.ResponseWriter, reqLog *logrus.Entry, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		reqLog.Error("failed to write response")
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
