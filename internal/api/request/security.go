package request

type ResolveSecurityLog struct {
	// ResolvedBy defaults to the calling actor.
	ResolvedBy string `json:"resolved_by" validate:"omitempty,max=200"`
}
