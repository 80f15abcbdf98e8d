package server

import (
	"net/http"

	"github.com/h0rv/kanban/internal/api"
	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/fanout"
)

func (s *Server) handleListBoards(w http.ResponseWriter, r *http.Request) {
	boards, err := s.store.ListBoards(r.Context(), userFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, boards)
}

func (s *Server) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	var req api.TitleRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	b, err := s.store.CreateBoard(r.Context(), userFrom(r), req.Title)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.GetBoard(r.Context(), userFrom(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleDeleteBoard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rcpt, err := s.store.DeleteBoard(r.Context(), userFrom(r), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rcpt)
	s.publish(r, fanout.TypeDeleted, rcpt, "board", id)
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var req api.MemberRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	rcpt, err := s.store.AddMember(r.Context(), userFrom(r), r.PathValue("id"), req.UserID, req.Role)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rcpt)
	s.changed(r, rcpt, "member", req.UserID)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	rcpt, err := s.store.RemoveMember(r.Context(), userFrom(r), r.PathValue("id"), uid)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rcpt)
	s.changed(r, rcpt, "member", uid)
}

func (s *Server) handleCreateLabel(w http.ResponseWriter, r *http.Request) {
	var req api.LabelRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	label, rcpt, err := s.store.CreateLabel(r.Context(), userFrom(r), r.PathValue("id"), req.Name, req.Color)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.LabelResponse{Receipt: rcpt, Label: label})
	s.changed(r, rcpt, "label", label.ID)
}

// Event streams are long-lived; the client id lets the hub skip echoes of
// the client's own mutations.
func (s *Server) handleBoardEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.CheckRead(r.Context(), userFrom(r), id); err != nil {
		s.writeError(w, err)
		return
	}
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = r.Header.Get(api.HeaderClientID)
	}
	s.hub.ServeSSE(w, r, id, clientID)
}

func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var req api.TitleRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	rcpt, err := s.store.CreateList(r.Context(), userFrom(r), r.PathValue("id"), req.Title)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rcpt)
	s.changed(r, rcpt.Receipt, "list", rcpt.List.ID)
}

func (s *Server) handleReorderLists(w http.ResponseWriter, r *http.Request) {
	var req api.ReorderRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	id := r.PathValue("id")
	rcpt, err := s.store.ReorderLists(r.Context(), userFrom(r), id, req.OrderedIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rcpt)
	s.changed(r, rcpt, "board", id)
}

func (s *Server) handleUpdateList(w http.ResponseWriter, r *http.Request) {
	var patch domain.ListPatch
	if err := readJSON(w, r, &patch); err != nil {
		s.badRequest(w, err)
		return
	}
	rcpt, err := s.store.UpdateList(r.Context(), userFrom(r), r.PathValue("id"), patch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rcpt)
	s.changed(r, rcpt.Receipt, "list", rcpt.List.ID)
}

func (s *Server) handleDeleteList(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rcpt, err := s.store.DeleteList(r.Context(), userFrom(r), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rcpt)
	s.changed(r, rcpt, "list", id)
}
