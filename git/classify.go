package git

import (
	"errors"
	"regexp"

	"github.com/jmgilman/depsync/exec"
)

// Kind identifies the outcome of classifying git's stderr.
type Kind int

const (
	// KindGeneric means no known pattern matched.
	KindGeneric Kind = iota

	// KindRefAlreadyExists means a tag or push collided with an existing ref.
	KindRefAlreadyExists
)

func (k Kind) String() string {
	switch k {
	case KindRefAlreadyExists:
		return "ref-already-exists"
	default:
		return "generic"
	}
}

// Classification is the result of Classify.
type Classification struct {
	Kind Kind

	// Ref is the colliding ref name for KindRefAlreadyExists.
	Ref string
}

// Patterns are tried in order; the first match wins.
var refExistsPatterns = []*regexp.Regexp{
	// git >= 2.x push to a remote that already holds the ref
	regexp.MustCompile(`cannot lock ref '([^']+)': reference already exists`),
	// local "git tag" collision
	regexp.MustCompile(`tag '([^']+)' already exists`),
	// push summary line: " ! [rejected]  name -> name (already exists)"
	regexp.MustCompile(`\S+\s+->\s+(\S+)\s+\(already exists\)`),
}

// Classify inspects captured stderr from a failed git invocation.
func Classify(stderr string) Classification {
	for _, re := range refExistsPatterns {
		if m := re.FindStringSubmatch(stderr); m != nil {
			return Classification{Kind: KindRefAlreadyExists, Ref: m[1]}
		}
	}
	return Classification{Kind: KindGeneric}
}

// classifyError maps a failed git invocation to a typed error. Anything that
// is not an *exec.ExecError, or whose stderr matches no pattern, is returned
// unchanged so the original message and stderr survive for diagnostics.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var execErr *exec.ExecError
	if !errors.As(err, &execErr) {
		return err
	}

	switch c := Classify(execErr.Stderr); c.Kind {
	case KindRefAlreadyExists:
		return newRefAlreadyExistsError(c.Ref, err)
	default:
		return err
	}
}
