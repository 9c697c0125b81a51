package platform

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DryRun accepts every write, logs it and posts nothing.
type DryRun struct {
	logger *zap.Logger
}

func NewDryRun(logger *zap.Logger) *DryRun {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DryRun{logger: logger}
}

func (d *DryRun) SubmitImagePost(_ context.Context, title string, png []byte) (string, error) {
	ref := "dryrun_" + uuid.NewString()
	d.logger.Info("dryrun_submit", zap.String("ref", ref), zap.String("title", title), zap.Int("bytes", len(png)))
	return ref, nil
}

func (d *DryRun) Reply(_ context.Context, parentRef, text string) error {
	d.logger.Info("dryrun_reply", zap.String("parent", parentRef), zap.Int("len", len(text)))
	return nil
}

func (d *DryRun) PostComments(context.Context, string) ([]Comment, error) { return nil, nil }

func (d *DryRun) StreamComments(ctx context.Context, _ func(Comment) error) error {
	<-ctx.Done()
	return ctx.Err()
}
