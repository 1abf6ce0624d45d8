package inspect

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	batchv1 "k8s.io/api/batch/v1"
	certificatesv1 "k8s.io/api/certificates/v1"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/version"
	fakediscovery "k8s.io/client-go/discovery/fake"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/utils/ptr"

	"kube-health-audit/internal/model"
)

func TestSecurityRBAC(t *testing.T) {
	cs := fake.NewSimpleClientset(
		&rbacv1.ClusterRole{
			ObjectMeta: metav1.ObjectMeta{Name: "ops-all"},
			Rules:      []rbacv1.PolicyRule{{Verbs: []string{"*"}, Resources: []string{"pods"}}},
		},
		&rbacv1.ClusterRole{
			ObjectMeta: metav1.ObjectMeta{Name: "cluster-admin"},
			Rules:      []rbacv1.PolicyRule{{Verbs: []string{"*"}, Resources: []string{"*"}}},
		},
		&rbacv1.ClusterRole{
			ObjectMeta: metav1.ObjectMeta{Name: "view"},
			Rules:      []rbacv1.PolicyRule{{Verbs: []string{"get"}, Resources: []string{"pods"}}},
		},
		&rbacv1.ClusterRole{ObjectMeta: metav1.ObjectMeta{Name: "edit"}},
		&rbacv1.ClusterRoleBinding{
			ObjectMeta: metav1.ObjectMeta{Name: "ci-admin"},
			RoleRef:    rbacv1.RoleRef{Kind: "ClusterRole", Name: "cluster-admin"},
			Subjects: []rbacv1.Subject{
				{Kind: rbacv1.ServiceAccountKind, Namespace: "ci", Name: "deployer"},
				{Kind: rbacv1.ServiceAccountKind, Namespace: "kube-system", Name: "operator"},
			},
		},
	)
	res, err := NewSecurity(depsFor(cs)).Inspect(context.Background(), Scope{})
	require.NoError(t, err)

	rbac := checkByName(t, res, "RBAC Configuration")
	assert.InDelta(t, 50*riskyBindingFactor, rbac.Score, 1e-9)
	assert.Equal(t, 1, countRule(res, "SEC-001"), "cluster-admin itself is exempt")
	assert.Equal(t, 1, countRule(res, "SEC-003"), "kube-system service accounts are exempt")
}

func TestSecurityPodContext(t *testing.T) {
	hardened := runningPod("app", "hardened")
	hardened.Spec.ServiceAccountName = "app-sa"
	hardened.Spec.SecurityContext = &corev1.PodSecurityContext{RunAsNonRoot: ptr.To(true)}

	root := runningPod("app", "root")
	root.Spec.SecurityContext = &corev1.PodSecurityContext{}
	root.Spec.Containers[0].SecurityContext = &corev1.SecurityContext{
		Privileged:               ptr.To(true),
		AllowPrivilegeEscalation: ptr.To(true),
	}

	bare := runningPod("app", "bare")

	cs := fake.NewSimpleClientset(hardened, root, bare, namespace("app"))
	res, err := NewSecurity(depsFor(cs)).Inspect(context.Background(), Scope{})
	require.NoError(t, err)

	psc := checkByName(t, res, "Pod Security Context")
	assert.InDelta(t, 100.0/3, psc.Score, 1e-9)
	ids := ruleIDs(res)
	assert.Contains(t, ids, "SEC-005")
	assert.Contains(t, ids, "SEC-007")
	assert.Contains(t, ids, "SEC-008")
	assert.Equal(t, 2, countRule(res, "SEC-009"))
	assert.InDelta(t, 100.0/3, checkByName(t, res, "Service Account Usage").Score, 1e-9)
}

func TestAutoscaling(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		res, err := NewAutoscaling(depsFor(fake.NewSimpleClientset())).Inspect(context.Background(), Scope{})
		require.NoError(t, err)
		require.Len(t, res.Checks, 1)
		assert.Equal(t, 70.0, res.Checks[0].Score)
		assert.Equal(t, "No HPAs detected in the target scope", res.Checks[0].Details)
	})

	t.Run("misconfigured", func(t *testing.T) {
		hpa := &autoscalingv2.HorizontalPodAutoscaler{
			ObjectMeta: metav1.ObjectMeta{Namespace: "app", Name: "web"},
			Spec: autoscalingv2.HorizontalPodAutoscalerSpec{
				MaxReplicas: 1,
				Behavior: &autoscalingv2.HorizontalPodAutoscalerBehavior{
					ScaleDown: &autoscalingv2.HPAScalingRules{SelectPolicy: ptr.To(autoscalingv2.DisabledPolicySelect)},
				},
			},
			Status: autoscalingv2.HorizontalPodAutoscalerStatus{
				Conditions: []autoscalingv2.HorizontalPodAutoscalerCondition{
					{Type: autoscalingv2.ScalingActive, Status: corev1.ConditionFalse, Reason: "FailedGetResourceMetric"},
				},
			},
		}
		res, err := NewAutoscaling(depsFor(fake.NewSimpleClientset(hpa))).Inspect(context.Background(), Scope{})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"AUTO-001", "AUTO-002", "AUTO-003", "AUTO-004"}, ruleIDs(res))
		assert.Equal(t, 0.0, res.OverallScore)
	})
}

func TestBatchStuckJobUsesClock(t *testing.T) {
	started := metav1.NewTime(testNow.Add(-2 * time.Hour))
	recent := metav1.NewTime(testNow.Add(-10 * time.Minute))
	cs := fake.NewSimpleClientset(
		&batchv1.Job{
			ObjectMeta: metav1.ObjectMeta{Namespace: "jobs", Name: "stuck"},
			Status:     batchv1.JobStatus{Active: 1, StartTime: &started},
		},
		&batchv1.Job{
			ObjectMeta: metav1.ObjectMeta{Namespace: "jobs", Name: "young"},
			Status:     batchv1.JobStatus{Active: 1, StartTime: &recent},
		},
		&batchv1.CronJob{
			ObjectMeta: metav1.ObjectMeta{Namespace: "jobs", Name: "nightly"},
			Status:     batchv1.CronJobStatus{LastScheduleTime: &recent, LastSuccessfulTime: &started},
		},
	)
	res, err := NewBatch(depsFor(cs)).Inspect(context.Background(), Scope{})
	require.NoError(t, err)
	assert.Equal(t, 50.0, checkByName(t, res, "Job Health").Score)
	assert.Equal(t, 0.0, checkByName(t, res, "CronJob Health").Score)
	assert.ElementsMatch(t, []string{"BATCH-005", "BATCH-002"}, ruleIDs(res))
}

func TestObservabilityEmptyCluster(t *testing.T) {
	res, err := NewObservability(depsFor(fake.NewSimpleClientset())).Inspect(context.Background(), Scope{})
	require.NoError(t, err)
	assert.Equal(t, 50.0, checkByName(t, res, "Metrics Pipeline").Score)
	assert.Equal(t, 0.0, checkByName(t, res, "CoreDNS Pods").Score)
	assert.Equal(t, 70.0, checkByName(t, res, "Log Aggregation").Score)
	assert.Equal(t, 65.0, checkByName(t, res, "Monitoring Stack").Score)
	assert.Contains(t, ruleIDs(res), "OBS-001")
}

func TestObservabilityFindsStack(t *testing.T) {
	ms := runningPod("kube-system", "metrics-server-7d9f")
	ksm := runningPod("monitoring", "kube-state-metrics-0")
	dns := runningPod("kube-system", "coredns-abc")
	cs := fake.NewSimpleClientset(ms, ksm, dns,
		&appsv1.DaemonSet{ObjectMeta: metav1.ObjectMeta{Namespace: "kube-system", Name: "fluent-bit"}},
		&appsv1.StatefulSet{ObjectMeta: metav1.ObjectMeta{Namespace: "monitoring", Name: "prometheus-k8s"}},
	)
	res, err := NewObservability(depsFor(cs)).Inspect(context.Background(), Scope{})
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.OverallScore)
	assert.Empty(t, res.Summary.Findings)
}

func selfSigned(t *testing.T, cn string, notAfter time.Time) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    notAfter.Add(-365 * 24 * time.Hour),
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestCertificatesTLSExpiry(t *testing.T) {
	tlsSecret := func(name string, crt []byte) *corev1.Secret {
		return &corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{Namespace: "web", Name: name},
			Type:       corev1.SecretTypeTLS,
			Data:       map[string][]byte{corev1.TLSCertKey: crt},
		}
	}
	cs := fake.NewSimpleClientset(
		tlsSecret("soon", selfSigned(t, "soon.example.com", testNow.Add(20*24*time.Hour+time.Hour))),
		tlsSecret("later", selfSigned(t, strings.Repeat("x", 80), testNow.Add(200*24*time.Hour))),
		tlsSecret("garbage", []byte("not pem")),
	)
	res, err := NewCertificates(depsFor(cs)).Inspect(context.Background(), Scope{})
	require.NoError(t, err)

	c := checkByName(t, res, "TLS Secret Expiry")
	assert.Equal(t, 70.0, c.Score)
	assert.Equal(t, model.StatusWarning, c.Status)
	require.Len(t, res.CertificateExpiries, 2)
	assert.Equal(t, "soon", res.CertificateExpiries[0].SecretName)
	assert.Equal(t, 20, res.CertificateExpiries[0].DaysUntilExpiry)
	assert.Len(t, res.CertificateExpiries[1].Subject, maxSubjectLen)
	assert.True(t, strings.HasSuffix(res.CertificateExpiries[1].Subject, "..."))
}

func TestCertificatesTLSExpiryReadsWholeChain(t *testing.T) {
	chain := append(selfSigned(t, "leaf.example.com", testNow.Add(200*24*time.Hour)),
		selfSigned(t, "Intermediate CA", testNow.Add(10*24*time.Hour+time.Hour))...)
	cs := fake.NewSimpleClientset(&corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Namespace: "web", Name: "bundle"},
		Type:       corev1.SecretTypeTLS,
		Data:       map[string][]byte{corev1.TLSCertKey: chain},
	})
	res, err := NewCertificates(depsFor(cs)).Inspect(context.Background(), Scope{})
	require.NoError(t, err)

	require.Len(t, res.CertificateExpiries, 2)
	assert.Equal(t, "CN=Intermediate CA", res.CertificateExpiries[0].Subject)
	assert.Equal(t, 10, res.CertificateExpiries[0].DaysUntilExpiry)
	assert.Equal(t, "CN=leaf.example.com", res.CertificateExpiries[1].Subject)
	assert.Equal(t, 70.0, checkByName(t, res, "TLS Secret Expiry").Score, "an expiring intermediate drives the score")
}

func TestTruncateSubjectKeepsRunesWhole(t *testing.T) {
	subject := "CN=" + strings.Repeat("证书", 40)
	got := truncateSubject(subject)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, maxSubjectLen, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, "CN=证书", truncateSubject("CN=证书"))
}

func TestCertificatesCSRConditionStatus(t *testing.T) {
	csr := func(name string, conds ...certificatesv1.CertificateSigningRequestCondition) *certificatesv1.CertificateSigningRequest {
		return &certificatesv1.CertificateSigningRequest{
			ObjectMeta: metav1.ObjectMeta{Name: name},
			Status:     certificatesv1.CertificateSigningRequestStatus{Conditions: conds},
		}
	}
	cond := func(typ certificatesv1.RequestConditionType, st corev1.ConditionStatus) certificatesv1.CertificateSigningRequestCondition {
		return certificatesv1.CertificateSigningRequestCondition{Type: typ, Status: st}
	}
	cs := fake.NewSimpleClientset(
		csr("approved", cond(certificatesv1.CertificateApproved, corev1.ConditionTrue)),
		csr("not-approved", cond(certificatesv1.CertificateApproved, corev1.ConditionFalse)),
		csr("denied", cond(certificatesv1.CertificateDenied, corev1.ConditionTrue)),
	)
	res, err := NewCertificates(depsFor(cs)).Inspect(context.Background(), Scope{})
	require.NoError(t, err)

	pending, rejected := map[string]bool{}, map[string]bool{}
	for _, f := range res.Summary.Findings {
		if f.RuleID != "CERT-001" {
			continue
		}
		if f.Severity == model.SeverityInfo {
			pending[f.Resource] = true
		} else {
			rejected[f.Resource] = true
		}
	}
	assert.Equal(t, map[string]bool{"not-approved": true}, pending)
	assert.Equal(t, map[string]bool{"denied": true}, rejected)
}

func TestExpiryScoreBuckets(t *testing.T) {
	assert.Equal(t, 40.0, expiryScore(-1))
	assert.Equal(t, 70.0, expiryScore(30))
	assert.Equal(t, 85.0, expiryScore(31))
	assert.Equal(t, 85.0, expiryScore(90))
	assert.Equal(t, 100.0, expiryScore(91))
}

func TestUpgradeKubeletSkew(t *testing.T) {
	old := node("old", true)
	old.Status.NodeInfo.KubeletVersion = "v1.25.4"
	cs := fake.NewSimpleClientset(node("n1", true), old)
	cs.Discovery().(*fakediscovery.FakeDiscovery).FakedServerVersion = &version.Info{GitVersion: "v1.30.1"}

	res, err := NewUpgrade(depsFor(cs)).Inspect(context.Background(), Scope{})
	require.NoError(t, err)
	kub := checkByName(t, res, "Kubelet Versions")
	assert.Equal(t, 60.0, kub.Score)
	assert.Equal(t, 2, countRule(res, "UPG-001"))
	assert.Contains(t, checkByName(t, res, "Deprecated API usage").Details, "1.30.1")
}
