package alert

import (
	"context"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/user"
	"github.com/Abraxas-365/nexus-iam/pkg/jobx"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
	"github.com/Abraxas-365/nexus-iam/pkg/logx"
	"github.com/Abraxas-365/nexus-iam/pkg/notifx"
)

// UserFinder loads the recipient of an alert.
type UserFinder interface {
	FindByID(ctx context.Context, id kernel.UserID) (*user.User, error)
}

// Handler renders and sends alert emails.
type Handler struct {
	users  UserFinder
	mailer *notifx.Mailer
}

// NewHandler registers the alert templates on mailer.
func NewHandler(users UserFinder, mailer *notifx.Mailer) (*Handler, error) {
	if err := registerTemplates(mailer.Templates()); err != nil {
		return nil, err
	}
	return &Handler{users: users, mailer: mailer}, nil
}

type view struct {
	Name       string
	OccurredAt string
	Details    map[string]string
}

// Handle is a jobx.HandlerFunc.
func (h *Handler) Handle(ctx context.Context, job *jobx.JobInfo) error {
	var p Payload
	if err := job.Decode(&p); err != nil {
		return err
	}

	u, err := h.users.FindByID(ctx, kernel.UserID(p.UserID))
	if errx.IsCode(err, user.CodeUserNotFound) {
		// deleted since the event; nobody left to tell
		logx.WithContext(ctx).WithField("user_id", p.UserID).Info("security alert dropped for missing user")
		return nil
	}
	if err != nil {
		return err
	}

	name := u.FirstName()
	if name == "" {
		name = u.Username()
	}
	v := view{
		Name:       name,
		OccurredAt: p.OccurredAt.UTC().Format("2006-01-02 15:04 MST"),
		Details:    p.Details,
	}
	return h.mailer.SendTemplate(ctx, templateName(p.Kind), v, u.Email())
}

// Register wires the handler into a worker.
func (h *Handler) Register(w *jobx.Worker) {
	w.Handle(JobType, h.Handle)
}
