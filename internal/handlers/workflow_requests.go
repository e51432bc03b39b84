package handlers

// SubmitRequest carries a submission into the approval cycle
type SubmitRequest struct {
	ChangeDescription string `json:"change_description"`
	Bump              string `json:"bump"` // none, minor or major
}

// ApprovalRequest carries optional reviewer comments
type ApprovalRequest struct {
	Comments string `json:"comments"`
}

// RejectRequest carries the mandatory rejection rationale
type RejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// RetireRequest carries the mandatory retirement rationale
type RetireRequest struct {
	Reason string `json:"reason" validate:"required"`
}
