package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bbayazit16/l2savings/common"
	"github.com/bbayazit16/l2savings/savings"
)

type sseSubscription struct {
	uid    string
	eventC chan sseEvent
}

type sseEvent struct {
	name string
	data any
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.With("err", err).Error("error writing response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) requestAddress(w http.ResponseWriter, r *http.Request) (string, bool) {
	address, err := common.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return "", false
	}
	return address, true
}

func (s *Server) handleSavings(w http.ResponseWriter, r *http.Request) {
	address, ok := s.requestAddress(w, r)
	if !ok {
		return
	}

	all, err := s.service.CalculateAll(r.Context(), address, nil)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleSavingsLocalized(w http.ResponseWriter, r *http.Request) {
	address, ok := s.requestAddress(w, r)
	if !ok {
		return
	}

	all, err := s.service.CalculateAll(r.Context(), address, nil)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, savings.LocalizeAll(all))
}

func (s *Server) handleSavingsExport(w http.ResponseWriter, r *http.Request) {
	address, ok := s.requestAddress(w, r)
	if !ok {
		return
	}

	all, err := s.service.CalculateAll(r.Context(), address, nil)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	export, err := savings.PrepareExport(all)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(export))
}

func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	type chainInfo struct {
		Chain       common.Chain `json:"chain"`
		DisplayName string       `json:"displayName"`
		Explorer    string       `json:"explorer"`
	}
	chains := s.service.Chains()
	infos := make([]chainInfo, len(chains))
	for i, chain := range chains {
		infos[i] = chainInfo{Chain: chain, DisplayName: chain.DisplayName(), Explorer: chain.ExplorerURI()}
	}
	s.writeJSON(w, http.StatusOK, infos)
}

// handleSavingsSSE streams per-chain progress events while the calculation
// runs, then a final "savings" event with the full result.
func (s *Server) handleSavingsSSE(w http.ResponseWriter, r *http.Request) {
	address, ok := s.requestAddress(w, r)
	if !ok {
		return
	}
	s.log.With("address", address).Info("SSE connection opened for savings")

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Expose-Headers", "Content-Type")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	subscriber := sseSubscription{
		uid:    uuid.New().String(),
		eventC: make(chan sseEvent, 100),
	}
	s.addSubscriber(&subscriber)
	defer s.removeSubscriber(&subscriber)

	go func() {
		all, err := s.service.CalculateAll(r.Context(), address, func(p savings.ChainProgress) {
			// Drop events rather than block the estimators on a slow reader.
			select {
			case subscriber.eventC <- sseEvent{name: "progress", data: p}:
			default:
			}
		})
		final := sseEvent{name: "savings", data: all}
		if err != nil {
			final = sseEvent{name: "error", data: map[string]string{"error": err.Error()}}
		}
		select {
		case subscriber.eventC <- final:
		case <-r.Context().Done():
		}
	}()

	// Wait for events or end of request...
	for {
		select {
		case <-r.Context().Done():
			s.log.Info("SSE closed, removing subscriber")
			return

		case event := <-subscriber.eventC:
			payload, err := json.Marshal(event.data)
			if err != nil {
				s.log.With("err", err).Error("error marshalling SSE event")
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.name, payload)
			w.(http.Flusher).Flush() //nolint:forcetypeassert

			if event.name == "savings" || event.name == "error" {
				return
			}
		}
	}
}
