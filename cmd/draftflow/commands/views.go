package commands

import (
	"encoding/json"
	"time"

	"github.com/mpislabs/draftflow"
	"github.com/mpislabs/draftflow/pkg/core"
)

type jobView struct {
	ID             string          `json:"id"`
	Kind           string          `json:"kind"`
	Target         string          `json:"target"`
	EntityID       string          `json:"entity_id"`
	Status         string          `json:"status"`
	DraftNo        int             `json:"draft_no"`
	ResultEntityID string          `json:"result_entity_id,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	Progress       core.Progress   `json:"progress"`
	Input          json.RawMessage `json:"input,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func newJobView(j *draftflow.Job) jobView {
	v := jobView{
		ID:        j.ID,
		Kind:      string(j.Kind),
		Target:    j.TargetName,
		EntityID:  j.TargetEntityID,
		Status:    string(j.Status),
		DraftNo:   j.DraftNo,
		Reason:    j.Reason,
		Progress:  core.ProgressOf(j.Status),
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
	if j.ResultEntityID != nil {
		v.ResultEntityID = *j.ResultEntityID
	}
	if json.Valid(j.Input) {
		v.Input = j.Input
	}
	return v
}

type draftView struct {
	JobID        string          `json:"job_id"`
	DraftNo      int             `json:"draft_no"`
	ReviewPrompt string          `json:"review_prompt,omitempty"`
	Document     json.RawMessage `json:"document"`
	CreatedAt    time.Time       `json:"created_at"`
}

func newDraftView(d *draftflow.Draft) draftView {
	return draftView{
		JobID:        d.JobID,
		DraftNo:      d.DraftNo,
		ReviewPrompt: d.ReviewPrompt,
		Document:     d.Document,
		CreatedAt:    d.CreatedAt,
	}
}

type sourceView struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
	Ref     string `json:"ref"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
	Hash    string `json:"hash,omitempty"`
	Chars   int    `json:"chars"`
}

func newSourceView(s *draftflow.Source) sourceView {
	return sourceView{
		ID:      s.ID,
		Channel: string(s.Channel),
		Ref:     s.Ref,
		Outcome: string(s.Outcome),
		Detail:  s.Detail,
		Hash:    s.ContentHash,
		Chars:   len([]rune(s.Text)),
	}
}

type auditView struct {
	Type      string         `json:"type"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type entityView struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Slug            string        `json:"slug"`
	ActiveVersionID string        `json:"active_version_id,omitempty"`
	Versions        []versionView `json:"versions,omitempty"`
}

type versionView struct {
	ID        string          `json:"id"`
	VersionNo int             `json:"version_no"`
	Kind      string          `json:"kind"`
	JobID     string          `json:"job_id,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Indexed   bool            `json:"indexed"`
	Document  json.RawMessage `json:"document,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func newVersionView(v *draftflow.EntityVersion, withDocument bool) versionView {
	out := versionView{
		ID:        v.ID,
		VersionNo: v.VersionNo,
		Kind:      string(v.Kind),
		Reason:    v.Reason,
		Indexed:   v.IndexedAt != nil,
		CreatedAt: v.CreatedAt,
	}
	if v.JobID != nil {
		out.JobID = *v.JobID
	}
	if withDocument {
		out.Document = v.Document
	}
	return out
}

type runView struct {
	ID               string              `json:"id"`
	Status           string              `json:"status"`
	Finalized        bool                `json:"finalized"`
	ExpectedChannels []string            `json:"expected_channels"`
	Reason           string              `json:"reason,omitempty"`
	Deadline         *time.Time          `json:"deadline,omitempty"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
	Outcomes         []draftflow.Outcome `json:"outcomes,omitempty"`
}

func newRunView(r *draftflow.Run, outcomes []draftflow.Outcome) runView {
	return runView{
		ID:               r.ID,
		Status:           string(r.Status),
		Finalized:        r.Finalized,
		ExpectedChannels: r.ExpectedChannels,
		Reason:           r.Reason,
		Deadline:         r.Deadline,
		CompletedAt:      r.CompletedAt,
		Outcomes:         outcomes,
	}
}

type commitView struct {
	Job      jobView     `json:"job"`
	EntityID string      `json:"entity_id"`
	Version  versionView `json:"version"`
	Degraded bool        `json:"degraded"`
}
