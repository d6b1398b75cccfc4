package stack

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"cascade.dev/cascade/internal/github"
	"cascade.dev/cascade/internal/logfields"
)

// Reporter turns a ConflictRecord into a durable, human-actionable record on
// the pull request: one comment with a resolution recipe plus a fixed label.
// It never mutates branch state. Re-running on the same conflict posts a
// duplicate comment; a conflict needs human intervention regardless.
type Reporter struct {
	dir    Directory
	remote string
	label  string
	logger *zap.Logger
}

// NewReporter creates a Reporter that applies the given label to conflicted
// pull requests. remote is only used in the recipe text.
func NewReporter(dir Directory, remote, label string, logger *zap.Logger) *Reporter {
	return &Reporter{
		dir:    dir,
		remote: remote,
		label:  label,
		logger: logger.Named("reporter"),
	}
}

// Report posts the conflict comment and applies the conflict label.
func (r *Reporter) Report(ctx context.Context, pr github.PullRequestInfo, record ConflictRecord) error {
	body := r.formatComment(record)
	if err := r.dir.Comment(ctx, pr.Number, body); err != nil {
		return err
	}
	if err := r.dir.AddLabel(ctx, pr.Number, r.label); err != nil {
		return err
	}

	r.logger.Info("reported conflict on pull request",
		logfields.PullRequest(pr.Number),
		logfields.Branch(record.Branch),
		zap.Strings("sources", record.Sources))
	return nil
}

func (r *Reporter) formatComment(record ConflictRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "This branch could not be updated automatically: merging %s into `%s` produced conflicts.\n\n",
		joinSources(record.Sources), record.Branch)
	b.WriteString("To resolve them manually:\n\n```\n")
	fmt.Fprintf(&b, "git fetch %s\n", r.remote)
	fmt.Fprintf(&b, "git switch %s\n", record.Branch)
	for _, source := range record.Sources {
		fmt.Fprintf(&b, "git merge %s\n", source)
		b.WriteString("# resolve the conflicts, then\n")
		b.WriteString("git commit\n")
	}
	fmt.Fprintf(&b, "git push %s %s\n", r.remote, record.Branch)
	b.WriteString("```\n")

	return b.String()
}

// joinSources joins 1..N source names the way a sentence would:
// "a", "a and b", "a, b, and c".
func joinSources(sources []string) string {
	quoted := make([]string, len(sources))
	for i, s := range sources {
		quoted[i] = "`" + s + "`"
	}

	switch len(quoted) {
	case 0:
		return ""
	case 1:
		return quoted[0]
	case 2:
		return quoted[0] + " and " + quoted[1]
	default:
		return strings.Join(quoted[:len(quoted)-1], ", ") + ", and " + quoted[len(quoted)-1]
	}
}
