package server

import (
	"net/http"

	"github.com/h0rv/kanban/internal/api"
	"github.com/h0rv/kanban/internal/domain"
)

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var in domain.NewCard
	if err := readJSON(w, r, &in); err != nil {
		s.badRequest(w, err)
		return
	}
	rcpt, err := s.store.CreateCard(r.Context(), userFrom(r), r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rcpt)
	s.changed(r, rcpt.Receipt, "card", rcpt.Card.ID)
}

func (s *Server) handleReorderCards(w http.ResponseWriter, r *http.Request) {
	var req api.ReorderRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	id := r.PathValue("id")
	rcpt, err := s.store.ReorderCards(r.Context(), userFrom(r), id, req.OrderedIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rcpt)
	s.changed(r, rcpt, "list", id)
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	var patch domain.CardPatch
	if err := readJSON(w, r, &patch); err != nil {
		s.badRequest(w, err)
		return
	}
	rcpt, err := s.store.UpdateCard(r.Context(), userFrom(r), r.PathValue("id"), patch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rcpt)
	s.changed(r, rcpt.Receipt, "card", rcpt.Card.ID)
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rcpt, err := s.store.DeleteCard(r.Context(), userFrom(r), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rcpt)
	s.changed(r, rcpt, "card", id)
}

func (s *Server) handleMoveCard(w http.ResponseWriter, r *http.Request) {
	var req api.MoveRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	var (
		rcpt domain.CardReceipt
		err  error
	)
	if len(req.Order) > 0 {
		rcpt, err = s.store.MoveCardInOrder(r.Context(), userFrom(r), r.PathValue("id"), req.TargetListID, req.Order)
	} else {
		rcpt, err = s.store.MoveCard(r.Context(), userFrom(r), r.PathValue("id"), req.TargetListID, req.Position)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rcpt)
	s.changed(r, rcpt.Receipt, "card", rcpt.Card.ID)
}

func (s *Server) handleApproveCard(w http.ResponseWriter, r *http.Request) {
	rcpt, err := s.store.ApproveCard(r.Context(), userFrom(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rcpt)
	s.changed(r, rcpt.Receipt, "card", rcpt.Card.ID)
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.store.ListComments(r.Context(), userFrom(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req api.CommentRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	c, rcpt, err := s.store.AddComment(r.Context(), userFrom(r), r.PathValue("id"), req.Body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.CommentResponse{Receipt: rcpt, Comment: c})
	s.changed(r, rcpt, "comment", c.ID)
}

func (s *Server) handleListChecklist(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListChecklist(r.Context(), userFrom(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleAddChecklistItem(w http.ResponseWriter, r *http.Request) {
	var req api.TitleRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	it, rcpt, err := s.store.AddChecklistItem(r.Context(), userFrom(r), r.PathValue("id"), req.Title)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.ChecklistItemResponse{Receipt: rcpt, Item: it})
	s.changed(r, rcpt, "checklist", it.ID)
}

func (s *Server) handleSetChecklistItem(w http.ResponseWriter, r *http.Request) {
	var req api.ChecklistPatchRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	it, rcpt, err := s.store.SetChecklistItem(r.Context(), userFrom(r), r.PathValue("id"), req.Done)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ChecklistItemResponse{Receipt: rcpt, Item: it})
	s.changed(r, rcpt, "checklist", it.ID)
}

func (s *Server) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	atts, err := s.store.ListAttachments(r.Context(), userFrom(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, atts)
}

func (s *Server) handleAddAttachment(w http.ResponseWriter, r *http.Request) {
	var req api.AttachmentRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	a, rcpt, err := s.store.AddAttachment(r.Context(), userFrom(r), r.PathValue("id"),
		domain.Attachment{Name: req.Name, URL: req.URL, Size: req.Size})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.AttachmentResponse{Receipt: rcpt, Attachment: a})
	s.changed(r, rcpt, "attachment", a.ID)
}
