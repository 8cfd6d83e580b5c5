package models

import "time"

// ContractStatus mirrors the lifecycle owned by the contract service.
// This service only performs the signed -> active transition on
// payment.succeeded; everything else belongs upstream.
type ContractStatus string

const (
	ContractStatusDraft      ContractStatus = "draft"
	ContractStatusSigned     ContractStatus = "signed"
	ContractStatusActive     ContractStatus = "active"
	ContractStatusTerminated ContractStatus = "terminated"
)

// Contract carries the minimal contract context this service reads.
type Contract struct {
	ID          string         `db:"id" json:"id"`
	StudentID   string         `db:"student_id" json:"student_id"`
	Status      ContractStatus `db:"status" json:"status"`
	ActivatedAt *time.Time     `db:"activated_at" json:"activated_at,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}
