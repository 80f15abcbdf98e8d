// Package api holds the wire format shared by the board server and its
// clients: header names, error codes and JSON bodies.
package api

import "github.com/h0rv/kanban/internal/domain"

// Request headers.
const (
	HeaderUserID   = "X-User-ID"
	HeaderClientID = "X-Client-ID"
)

// Error codes returned in the "code" field of error responses.
const (
	CodePolicyRejected = "POLICY_REJECTED"
	CodeStale          = "STALE"
	CodeNotFound       = "NOT_FOUND"
	CodeInvalid        = "INVALID"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeInternal       = "INTERNAL"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	OK     bool   `json:"ok"`
	Code   string `json:"code"`
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// Request bodies.
type (
	TitleRequest struct {
		Title string `json:"title"`
	}
	MemberRequest struct {
		UserID string      `json:"user_id"`
		Role   domain.Role `json:"role"`
	}
	LabelRequest struct {
		Name  string `json:"name"`
		Color string `json:"color,omitempty"`
	}
	ReorderRequest struct {
		OrderedIDs []string `json:"ordered_ids"`
	}
	// MoveRequest places a card at Position, or, when Order is set, moves it
	// and renumbers the target list to Order in one step.
	MoveRequest struct {
		TargetListID string   `json:"target_list_id"`
		Position     float64  `json:"position"`
		Order        []string `json:"order,omitempty"`
	}
	CommentRequest struct {
		Body string `json:"body"`
	}
	ChecklistPatchRequest struct {
		Done bool `json:"done"`
	}
	AttachmentRequest struct {
		Name string `json:"name"`
		URL  string `json:"url"`
		Size int64  `json:"size"`
	}
)

// LabelResponse is returned when a label is created.
type LabelResponse struct {
	domain.Receipt
	Label domain.Label `json:"label"`
}

// CommentResponse is returned when a comment is posted.
type CommentResponse struct {
	domain.Receipt
	Comment domain.Comment `json:"comment"`
}

// ChecklistItemResponse is returned when a checklist item changes.
type ChecklistItemResponse struct {
	domain.Receipt
	Item domain.ChecklistItem `json:"item"`
}

// AttachmentResponse is returned when an attachment is recorded.
type AttachmentResponse struct {
	domain.Receipt
	Attachment domain.Attachment `json:"attachment"`
}
