package ezca

import (
	"github.com/danthegoodman1/Provisio/auth"
)

type (
	// CertificateAuthority is a CA and issuing template the caller may request from.
	CertificateAuthority struct {
		CAID            string `json:"CAID"`
		TemplateID      string `json:"TemplateID"`
		CAFriendlyName  string `json:"CAFriendlyName"`
		CAType          string `json:"CAType"`
		MaxValidityDays int    `json:"MaxCertificateValidityDays"`
	}

	// OperationResult reports a remote operation. A failed result always has a Message and Err.
	OperationResult struct {
		Success bool
		Message string
		Err     error
	}

	IssueResult struct {
		State IssueState
		// Only set in CertificateIssued
		Certificate *IssuedCertificate
		OperationResult
	}

	IssueState int

	apiResult struct {
		Success bool   `json:"Success"`
		Message string `json:"Message"`
	}

	registerDomainRequest struct {
		CAID       string          `json:"CAID"`
		TemplateID string          `json:"TemplateID"`
		Domain     string          `json:"Domain"`
		Owners     []auth.Identity `json:"Owners"`
		Requesters []auth.Identity `json:"Requesters"`
	}

	certificateRequest struct {
		CAID            string   `json:"CAID"`
		TemplateID      string   `json:"TemplateID"`
		SubjectName     string   `json:"SubjectName"`
		SubjectAltNames []string `json:"SubjectAltNames"`
		CSR             string   `json:"CSR"`
		ValidityInDays  int      `json:"ValidityInDays"`
	}
)

const (
	Idle IssueState = iota
	KeyGenerated
	CSRBuilt
	Submitted
	CertificateIssued
	Rejected
	TransportFailed
)

func (s IssueState) String() string {
	switch s {
	case Idle:
		return "idle"
	case KeyGenerated:
		return "key_generated"
	case CSRBuilt:
		return "csr_built"
	case Submitted:
		return "submitted"
	case CertificateIssued:
		return "certificate_issued"
	case Rejected:
		return "rejected"
	case TransportFailed:
		return "transport_failed"
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s IssueState) Terminal() bool {
	return s == CertificateIssued || s == Rejected || s == TransportFailed
}

func failed(msg string, err error) OperationResult {
	return OperationResult{Success: false, Message: msg, Err: err}
}
