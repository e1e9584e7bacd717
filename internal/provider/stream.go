package provider

import (
	"errors"
	"io"

	"github.com/askbase/askbase/internal/domain"
)

// trackedStream adapts a vendor stream to the Stream contract and enforces
// the incomplete-stream rule: a failure before the first delta keeps its
// original classification, a failure after at least one delta becomes
// ErrIncompleteStream because the output already handed to the caller can
// never be safely reproduced.
type trackedStream struct {
	recv    func() (string, error)
	closeFn func() error
	emitted bool
	done    bool
}

func newTrackedStream(recv func() (string, error), closeFn func() error) *trackedStream {
	return &trackedStream{recv: recv, closeFn: closeFn}
}

func (s *trackedStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}

	delta, err := s.recv()
	if err != nil {
		s.done = true
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if s.emitted {
			return "", domain.NewDomainErrorWithCause(
				domain.ErrCodeIncompleteStream,
				"provider stream ended without completion marker",
				err,
			)
		}
		return "", err
	}

	s.emitted = true
	return delta, nil
}

func (s *trackedStream) Close() error {
	s.done = true
	if s.closeFn != nil {
		return s.closeFn()
	}
	return nil
}
