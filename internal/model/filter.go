package model

// FilterPayload is the investigation state carried between requests inside a
// pagination token. Offset is only meaningful together with the Targets and
// PeriodDays it was issued for.
type FilterPayload struct {
	Targets        []string `json:"targets,omitempty"`
	ExcludeTargets []string `json:"exclude_targets,omitempty"`
	Reason         string   `json:"reason,omitempty"`
	PeriodDays     int      `json:"period_days,omitempty"`
	Offset         int      `json:"offset,omitempty"`
}

// Normalize returns a copy with empty slices collapsed to nil, so that a
// payload and its decoded form compare equal.
func (p FilterPayload) Normalize() FilterPayload {
	out := p
	if len(out.Targets) == 0 {
		out.Targets = nil
	} else {
		out.Targets = append([]string(nil), p.Targets...)
	}
	if len(out.ExcludeTargets) == 0 {
		out.ExcludeTargets = nil
	} else {
		out.ExcludeTargets = append([]string(nil), p.ExcludeTargets...)
	}
	return out
}

// IsEmpty reports whether the payload names no targets.
func (p FilterPayload) IsEmpty() bool {
	return len(p.Targets) == 0
}

// WithOffset returns a copy of p positioned at offset.
func (p FilterPayload) WithOffset(offset int) FilterPayload {
	out := p.Normalize()
	if offset < 0 {
		offset = 0
	}
	out.Offset = offset
	return out
}
