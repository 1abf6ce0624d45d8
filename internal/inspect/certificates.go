package inspect

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math"
	"sort"
	"time"
	"unicode/utf8"

	certificatesv1 "k8s.io/api/certificates/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"kube-health-audit/internal/model"
)

const maxSubjectLen = 60

// Certificates checks certificate signing requests and TLS secret expiry.
type Certificates struct{ base }

func NewCertificates(d Deps) *Certificates { return &Certificates{newBase(d, DomainCertificates)} }

func (*Certificates) Domain() string { return DomainCertificates }

func (c *Certificates) Inspect(ctx context.Context, scope Scope) (model.AuditResult, error) {
	r := newResults(DomainCertificates)
	c.inspectCSRs(ctx, r)
	rows := c.inspectSecrets(ctx, r, scope)
	res, err := r.build(c.now())
	if err != nil {
		return res, err
	}
	res.CertificateExpiries = rows
	return res, nil
}

func (c *Certificates) inspectCSRs(ctx context.Context, r *results) {
	const name, desc = "Certificate Signing Requests", "Checks for denied, failed or pending CSRs"
	list, err := c.client.CertificatesV1().CertificateSigningRequests().List(ctx, metav1.ListOptions{})
	if err != nil {
		r.fail(name, desc, fmt.Errorf("list certificate signing requests: %w", err))
		return
	}

	bad := 0
	for _, csr := range list.Items {
		approved, rejected := false, ""
		for _, cond := range csr.Status.Conditions {
			if cond.Status != corev1.ConditionTrue {
				continue
			}
			switch cond.Type {
			case certificatesv1.CertificateApproved:
				approved = true
			case certificatesv1.CertificateDenied, certificatesv1.CertificateFailed:
				rejected = string(cond.Type)
			}
		}
		switch {
		case rejected != "":
			bad++
			r.find(model.SeverityWarning, "CertificateSigningRequest", csr.Name,
				fmt.Sprintf("CSR %s is %s", csr.Name, rejected),
				"Inspect the requester and clean up the CSR", "CERT-001")
		case !approved:
			r.find(model.SeverityInfo, "CertificateSigningRequest", csr.Name,
				fmt.Sprintf("CSR %s is pending approval", csr.Name),
				"Approve or deny the pending CSR", "CERT-001")
		}
	}

	total := len(list.Items)
	r.add(model.NewCheck(name, desc, model.RatioScore(total-bad, total),
		fmt.Sprintf("%d CSRs, %d denied or failed", total, bad),
		"Review denied and failed certificate signing requests"))
}

func (c *Certificates) inspectSecrets(ctx context.Context, r *results, scope Scope) []model.CertificateExpiryRow {
	const name, desc = "TLS Secret Expiry", "Checks expiry of certificates stored in TLS secrets"
	list, err := c.client.CoreV1().Secrets(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		r.fail(name, desc, fmt.Errorf("list secrets: %w", err))
		return nil
	}

	now := c.now()
	var rows []model.CertificateExpiryRow
	secrets := 0
	minDays := math.MaxInt
	for _, s := range scoped(list.Items, scope) {
		if s.Type != corev1.SecretTypeTLS {
			continue
		}
		certs := parseChain(s.Data[corev1.TLSCertKey])
		if len(certs) == 0 {
			c.log.Debug("skip unparsable tls secret")
			continue
		}
		secrets++
		for _, cert := range certs {
			days := daysUntil(now, cert.NotAfter)
			rows = append(rows, model.CertificateExpiryRow{
				SecretNamespace: s.Namespace,
				SecretName:      s.Name,
				Subject:         truncateSubject(cert.Subject.String()),
				ExpiryUTC:       cert.NotAfter.UTC().Format(time.RFC3339),
				DaysUntilExpiry: days,
			})
			if days < minDays {
				minDays = days
			}
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].DaysUntilExpiry != rows[j].DaysUntilExpiry {
			return rows[i].DaysUntilExpiry < rows[j].DaysUntilExpiry
		}
		return ref(rows[i].SecretNamespace, rows[i].SecretName) < ref(rows[j].SecretNamespace, rows[j].SecretName)
	})

	if len(rows) == 0 {
		r.add(model.NewCheck(name, desc, model.MaxCheckScore, "No TLS secrets found", ""))
		return nil
	}
	r.add(model.NewCheck(name, desc, expiryScore(minDays),
		fmt.Sprintf("%d certificates in %d TLS secrets, nearest expiry in %d days", len(rows), secrets, minDays),
		"Renew certificates before they expire"))
	return rows
}

// expiryScore buckets the nearest expiry: expired 40, within 30 days 70,
// within 90 days 85.
func expiryScore(days int) float64 {
	switch {
	case days < 0:
		return 40
	case days <= 30:
		return 70
	case days <= 90:
		return 85
	default:
		return model.MaxCheckScore
	}
}

// parseChain returns every parsable CERTIFICATE block in data, in order.
// Other block types and unparsable certificates are skipped.
func parseChain(data []byte) []*x509.Certificate {
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return certs
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			continue
		}
		certs = append(certs, cert)
	}
}

func daysUntil(now, t time.Time) int {
	return int(math.Floor(t.Sub(now).Hours() / 24))
}

// truncateSubject caps s at maxSubjectLen characters.
func truncateSubject(s string) string {
	if utf8.RuneCountInString(s) <= maxSubjectLen {
		return s
	}
	return string([]rune(s)[:maxSubjectLen-3]) + "..."
}
