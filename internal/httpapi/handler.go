package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Arthur-Meier/AgroTech/internal/storage"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// maxBodyBytes bounds a single record upload.
const maxBodyBytes = 1 << 20

func RegisterRoutes(r chi.Router, repo *storage.AnimalRepository, logger *slog.Logger) {
	r.Route("/animals", func(ar chi.Router) {
		ar.Get("/", listAnimalsHandler(repo, logger))
		ar.Post("/", upsertAnimalHandler(repo, logger))
		ar.Get("/{animalID}", getAnimalHandler(repo, logger))
		ar.Put("/{animalID}", upsertAnimalHandler(repo, logger))
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func listAnimalsHandler(repo *storage.AnimalRepository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := repo.ListAnimals(r.Context())
		if err != nil {
			writeStorageError(w, r, logger, err)
			return
		}

		out := make([]storage.AnimalRecord, 0, len(items))
		for _, a := range items {
			out = append(out, storage.ToRecord(a))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getAnimalHandler(repo *storage.AnimalRepository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "animalID")
		a, ok, err := repo.GetAnimalByID(r.Context(), id)
		if err != nil {
			writeStorageError(w, r, logger, err)
			return
		}
		if !ok {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "animal not found"})
			return
		}
		writeJSON(w, http.StatusOK, storage.ToRecord(a))
	}
}

// upsertAnimalHandler serves POST /animals and PUT /animals/{animalID}. The
// body is a full record; its version must be the one last read.
func upsertAnimalHandler(repo *storage.AnimalRepository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rec storage.AnimalRecord
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&rec); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
			return
		}

		if pathID := strings.TrimSpace(chi.URLParam(r, "animalID")); pathID != "" {
			if rec.ID != "" && rec.ID != pathID {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "body id does not match path"})
				return
			}
			rec.ID = pathID
		}

		in, err := storage.FromRecord(rec)
		if err != nil {
			writeStorageError(w, r, logger, err)
			return
		}

		existed := false
		if in.ID != "" {
			if _, existed, err = repo.GetAnimalByID(r.Context(), in.ID); err != nil {
				writeStorageError(w, r, logger, err)
				return
			}
		}

		saved, err := repo.UpsertAnimal(r.Context(), in)
		if err != nil {
			writeStorageError(w, r, logger, err)
			return
		}

		status := http.StatusOK
		if !existed {
			status = http.StatusCreated
		}
		writeJSON(w, status, storage.ToRecord(saved))
	}
}

func writeStorageError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, storage.ErrVersionConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		logger.Error("animal request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", chimw.GetReqID(r.Context()),
			"err", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
