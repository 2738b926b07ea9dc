// Package kubo stores artifacts in a local IPFS repository by shelling
// out to the Kubo CLI. It operates on the local repo only; pinning and
// network availability of the blocks are the node operator's concern.
//
// Blocks are written as raw sha2-256 CIDv1 so the CID the node reports is
// exactly artifact.Sum of the bytes. A disagreement means a broken or
// misconfigured node and is surfaced, never papered over.
package kubo

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ipfs/go-cid"

	"tensormart.io/market/artifact"
)

type Store struct {
	bin string
	env []string
}

var _ artifact.Store = (*Store)(nil)

type Options struct {
	// Bin is the path to the ipfs binary. Empty means "ipfs" on PATH.
	Bin string

	// Env overrides the command environment (e.g. to set IPFS_PATH).
	// Nil uses the process environment.
	Env []string
}

func New(opts Options) *Store {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	return &Store{bin: bin, env: opts.Env}
}

func (s *Store) Put(data []byte) (cid.Cid, error) {
	want, err := artifact.Sum(data)
	if err != nil {
		return cid.Undef, err
	}

	out, err := s.run(data,
		"block", "put",
		"--quiet",
		"--format=raw",
		"--mhtype=sha2-256",
		"--mhlen=32",
		"--cid-version=1",
		"/dev/stdin",
	)
	if err != nil {
		return cid.Undef, err
	}

	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return cid.Undef, fmt.Errorf("kubo: unexpected block put output: %w", err)
	}
	if got != want {
		return cid.Undef, artifact.ErrMismatch
	}
	return want, nil
}

func (s *Store) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, artifact.ErrInvalidCID
	}
	out, err := s.run(nil, "block", "get", id.String())
	if err != nil {
		if isLikelyNotFound(err) {
			return nil, artifact.ErrNotFound
		}
		return nil, err
	}
	if err := artifact.Verify(id, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := s.run(nil, "block", "stat", id.String())
	return err == nil
}

func (s *Store) run(stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.Command(s.bin, args...)
	if s.env != nil {
		cmd.Env = s.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		msg := strings.TrimSpace(string(ee.Stderr))
		if msg == "" {
			return nil, fmt.Errorf("kubo: %v", err)
		}
		return nil, fmt.Errorf("kubo: %s", msg)
	}
	return nil, err
}

func isLikelyNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found")
}
