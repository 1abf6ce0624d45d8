package inspect

import (
	"context"
	"fmt"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"kube-health-audit/internal/model"
)

// stuckJobAfter is how long a Job may run without a single success before
// it is reported as stuck.
const stuckJobAfter = 60 * time.Minute

// Batch checks CronJob scheduling and Job completion.
type Batch struct{ base }

func NewBatch(d Deps) *Batch { return &Batch{newBase(d, DomainBatch)} }

func (*Batch) Domain() string { return DomainBatch }

func (b *Batch) Inspect(ctx context.Context, scope Scope) (model.AuditResult, error) {
	r := newResults(DomainBatch)
	b.inspectCronJobs(ctx, r, scope)
	b.inspectJobs(ctx, r, scope)
	return r.build(b.now())
}

func (b *Batch) inspectCronJobs(ctx context.Context, r *results, scope Scope) {
	const name, desc = "CronJob Health", "Checks CronJob scheduling and last successful run"
	list, err := b.client.BatchV1().CronJobs(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		r.fail(name, desc, fmt.Errorf("list cronjobs: %w", err))
		return
	}
	cjs := scoped(list.Items, scope)
	if len(cjs) == 0 {
		r.add(model.NewCheck(name, desc, scoreAbsent, "No CronJobs detected in the target scope", ""))
		return
	}

	healthy := 0
	for i := range cjs {
		if cronJobHealthy(r, &cjs[i]) {
			healthy++
		}
	}
	r.add(model.NewCheck(name, desc, model.RatioScore(healthy, len(cjs)),
		fmt.Sprintf("%d/%d CronJobs healthy", healthy, len(cjs)),
		"Review suspended or failing CronJobs"))
}

func cronJobHealthy(r *results, cj *batchv1.CronJob) bool {
	cr := ref(cj.Namespace, cj.Name)
	if cj.Spec.Suspend != nil && *cj.Spec.Suspend {
		r.find(model.SeverityWarning, "CronJob", cr,
			fmt.Sprintf("CronJob %s is suspended", cr),
			"Resume the CronJob or remove it if no longer needed", "BATCH-001")
		return false
	}

	last := cj.Status.LastScheduleTime
	if last == nil {
		r.find(model.SeverityWarning, "CronJob", cr,
			fmt.Sprintf("CronJob %s has never been scheduled", cr),
			"Verify the schedule expression and controller health", "BATCH-003")
		return false
	}
	ok := cj.Status.LastSuccessfulTime
	if ok == nil || ok.Before(last) {
		r.find(model.SeverityCritical, "CronJob", cr,
			fmt.Sprintf("CronJob %s last run did not succeed", cr),
			"Check logs of the most recent Job created by the CronJob", "BATCH-002")
		return false
	}
	return true
}

func (b *Batch) inspectJobs(ctx context.Context, r *results, scope Scope) {
	const name, desc = "Job Health", "Checks Job failures and stuck Jobs"
	list, err := b.client.BatchV1().Jobs(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		r.fail(name, desc, fmt.Errorf("list jobs: %w", err))
		return
	}
	jobs := scoped(list.Items, scope)
	if len(jobs) == 0 {
		r.add(model.NewCheck(name, desc, scoreAbsent, "No Jobs detected in the target scope", ""))
		return
	}

	now := b.now()
	healthy := 0
	for i := range jobs {
		j := &jobs[i]
		jr := ref(j.Namespace, j.Name)
		switch {
		case j.Status.Failed > 0:
			r.find(model.SeverityWarning, "Job", jr,
				fmt.Sprintf("Job %s has %d failed pods", jr, j.Status.Failed),
				"Check backoffLimit, pod logs and resource requests", "BATCH-004")
		case j.Status.Active > 0 && j.Status.Succeeded == 0 &&
			j.Status.StartTime != nil && now.Sub(j.Status.StartTime.Time) > stuckJobAfter:
			r.find(model.SeverityWarning, "Job", jr,
				fmt.Sprintf("Job %s has been running for %s without completing", jr, now.Sub(j.Status.StartTime.Time).Round(time.Minute)),
				"Check for stuck pods or set activeDeadlineSeconds", "BATCH-005")
		default:
			healthy++
		}
	}
	r.add(model.NewCheck(name, desc, model.RatioScore(healthy, len(jobs)),
		fmt.Sprintf("%d/%d Jobs healthy", healthy, len(jobs)),
		"Investigate failed and long-running Jobs"))
}
