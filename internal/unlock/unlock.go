// Package unlock grants access when a known face shows up, falling back to a
// password when the camera keeps seeing strangers.
package unlock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/andresmejia3/aist/internal/capture"
	"github.com/andresmejia3/aist/internal/hashing"
	"github.com/andresmejia3/aist/internal/identity"
	"github.com/andresmejia3/aist/internal/recognize"
)

const (
	DefaultAttempts         = 10
	DefaultPasswordAttempts = 3
)

// Prompter asks the user for a secret.
type Prompter interface {
	Prompt(message string) (string, error)
}

// Options sets the attempt budgets.
type Options struct {
	// Attempts is how many unknown faces are tolerated before giving up on the camera.
	Attempts int
	// PasswordAttempts is how many passwords may be tried afterwards.
	PasswordAttempts int
}

func (o Options) withDefaults() Options {
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}
	if o.PasswordAttempts <= 0 {
		o.PasswordAttempts = DefaultPasswordAttempts
	}
	return o
}

// Unlocker combines a face recognizer with an optional password.
type Unlocker struct {
	Recognizer *recognize.Recognizer
	Prompter   Prompter
	Out        io.Writer
	Logger     *slog.Logger

	hash   string
	method string
}

// New returns an unlocker without a password.
func New(r *recognize.Recognizer, p Prompter) *Unlocker {
	return &Unlocker{Recognizer: r, Prompter: p, Out: os.Stdout, Logger: slog.Default()}
}

// SetPassword stores the digest of the fallback password and the method that produced it.
func (u *Unlocker) SetPassword(hash, method string) error {
	if !hashing.Supported(method) {
		return fmt.Errorf("%w: %q", hashing.ErrUnsupportedMethod, method)
	}
	if hash == "" {
		return errors.New("password hash must not be empty")
	}
	u.hash = hash
	u.method = method
	return nil
}

// HasPassword reports whether a fallback password is configured.
func (u *Unlocker) HasPassword() bool { return u.hash != "" }

func (u *Unlocker) out() io.Writer {
	if u.Out == nil {
		return io.Discard
	}
	return u.Out
}

func (u *Unlocker) logger() *slog.Logger {
	if u.Logger == nil {
		return slog.Default()
	}
	return u.Logger
}

// Launch is the face half of Unlock. It returns true at the first identified
// face and false once attempts unknown faces were seen or the source ended.
func (u *Unlocker) Launch(ctx context.Context, src capture.Source, attempts int) (bool, error) {
	r := u.Recognizer
	if r.Gallery.Len() == 0 {
		return false, recognize.ErrNoIdentities
	}
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	m := r.Matcher(r.Threshold)

	wrong := 0
	for {
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}

		faces, err := r.Embedder.Embed(frame.Data)
		if err != nil {
			return false, err
		}
		for _, f := range faces {
			res, err := m.Match(f.Vec)
			if err != nil {
				return false, err
			}
			switch res.Outcome {
			case identity.Identified:
				fmt.Fprintf(u.out(), "👋 Hi, %s\n", res.Label)
				u.logger().Info("unlocked by face", "label", res.Label, "distance", res.Distance)
				return true, nil
			case identity.Unknown:
				wrong++
				if wrong >= attempts {
					fmt.Fprintln(u.out(), "⛔ Too many attempts!")
					return false, nil
				}
				fmt.Fprintln(u.out(), "⚠️  Wrong person detected!")
			}
		}
	}
}

// Unlock tries the face first, then the password if one is set.
func (u *Unlocker) Unlock(ctx context.Context, src capture.Source, opts Options) (bool, error) {
	opts = opts.withDefaults()

	ok, err := u.Launch(ctx, src, opts.Attempts)
	if err != nil || ok {
		return ok, err
	}
	if !u.HasPassword() || u.Prompter == nil {
		return false, nil
	}

	for attempt := 1; attempt <= opts.PasswordAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if attempt > 1 {
			left := opts.PasswordAttempts - attempt + 1
			if left > 1 {
				fmt.Fprintf(u.out(), "You have %d attempts\n", left)
			} else {
				fmt.Fprintln(u.out(), "You have last one attempt")
			}
		}

		ok, err := u.checkPassword()
		if err != nil {
			return false, err
		}
		if ok {
			u.logger().Info("unlocked by password", "attempt", attempt)
			return true, nil
		}
	}
	return false, nil
}

func (u *Unlocker) checkPassword() (bool, error) {
	input, err := u.Prompter.Prompt("Enter your password: ")
	if err != nil {
		return false, fmt.Errorf("read password: %w", err)
	}
	return hashing.Verify(input, u.hash, u.method)
}
