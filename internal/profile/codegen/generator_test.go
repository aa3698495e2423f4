package codegen

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"referral/internal/profile/metrics"
	"referral/internal/profile/models"
	dErrors "referral/pkg/domain-errors"
)

type fakeChecker struct {
	mu     sync.Mutex
	taken  map[models.ReferralCode]bool
	probes []models.ReferralCode
	err    error
}

func (f *fakeChecker) CodeExists(_ context.Context, code models.ReferralCode) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes = append(f.probes, code)
	if f.err != nil {
		return false, f.err
	}
	return f.taken[code], nil
}

// scripted returns entropy that makes Draw yield exactly the given codes.
func scripted(codes ...string) io.Reader {
	var buf bytes.Buffer
	for _, code := range codes {
		for i := 0; i < len(code); i++ {
			buf.WriteByte(byte(strings.IndexByte(models.CodeAlphabet, code[i])))
		}
		buf.Write(make([]byte, models.CodeLength))
	}
	return &buf
}

type GeneratorSuite struct {
	suite.Suite
	checker *fakeChecker
	ctx     context.Context
}

func TestGeneratorSuite(t *testing.T) {
	suite.Run(t, new(GeneratorSuite))
}

func (s *GeneratorSuite) SetupTest() {
	s.checker = &fakeChecker{taken: map[models.ReferralCode]bool{}}
	s.ctx = context.Background()
}

func (s *GeneratorSuite) TestDraw() {
	s.Run("codes have fixed length and alphabet", func() {
		g := New(s.checker)
		for i := 0; i < 500; i++ {
			code, err := g.Draw()
			s.Require().NoError(err)
			s.True(code.Valid(), "invalid code %q", code)
			s.NotContains(string(code), "0")
			s.NotContains(string(code), "O")
			s.NotContains(string(code), "1")
			s.NotContains(string(code), "I")
			s.NotContains(string(code), "L")
		}
	})

	s.Run("bytes outside the unbiased range are discarded", func() {
		entropy := append([]byte{255, 250, 248}, bytes.Repeat([]byte{30}, 13)...)
		g := New(s.checker, WithRandom(bytes.NewReader(entropy)))

		code, err := g.Draw()
		s.Require().NoError(err)
		s.Equal(models.ReferralCode("ZZZZZZZZ"), code)
	})

	s.Run("randomness failure is internal", func() {
		g := New(s.checker, WithRandom(bytes.NewReader(nil)))

		_, err := g.Draw()
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *GeneratorSuite) TestGenerate() {
	s.Run("returns the first free code", func() {
		g := New(s.checker, WithRandom(scripted("ABCDEFGH")))

		code, drawn, err := g.Generate(s.ctx, g.MaxAttempts())
		s.Require().NoError(err)
		s.Equal(models.ReferralCode("ABCDEFGH"), code)
		s.Equal(1, drawn)
		s.Len(s.checker.probes, 1)
	})

	s.Run("redraws on collision and succeeds on the last attempt", func() {
		s.checker.probes = nil
		s.checker.taken = map[models.ReferralCode]bool{
			"AAAAAAAA": true, "BBBBBBBB": true, "CCCCCCCC": true, "DDDDDDDD": true,
		}
		reg := prometheus.NewRegistry()
		m := metrics.NewWithRegistry(reg)
		g := New(s.checker,
			WithRandom(scripted("AAAAAAAA", "BBBBBBBB", "CCCCCCCC", "DDDDDDDD", "EEEEEEEE")),
			WithMetrics(m),
		)

		code, drawn, err := g.Generate(s.ctx, g.MaxAttempts())
		s.Require().NoError(err)
		s.Equal(models.ReferralCode("EEEEEEEE"), code)
		s.Equal(5, drawn)
		s.Len(s.checker.probes, 5)
		s.Equal(4.0, testutil.ToFloat64(m.CodeCollisions))
	})

	s.Run("gives up after the attempt budget", func() {
		s.checker.probes = nil
		s.checker.taken = map[models.ReferralCode]bool{
			"AAAAAAAA": true, "BBBBBBBB": true, "CCCCCCCC": true, "DDDDDDDD": true, "EEEEEEEE": true,
		}
		g := New(s.checker, WithRandom(scripted("AAAAAAAA", "BBBBBBBB", "CCCCCCCC", "DDDDDDDD", "EEEEEEEE", "FFFFFFFF")))

		_, drawn, err := g.Generate(s.ctx, g.MaxAttempts())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeExhaustedRetries))
		s.Equal(DefaultMaxAttempts, drawn)
		s.Len(s.checker.probes, DefaultMaxAttempts)
	})

	s.Run("stops at the remaining budget", func() {
		s.checker.probes = nil
		s.checker.taken = map[models.ReferralCode]bool{"AAAAAAAA": true, "BBBBBBBB": true}
		g := New(s.checker, WithRandom(scripted("AAAAAAAA", "BBBBBBBB", "CCCCCCCC")))

		_, drawn, err := g.Generate(s.ctx, 2)
		s.True(dErrors.HasCode(err, dErrors.CodeExhaustedRetries))
		s.Equal(2, drawn)
		s.Len(s.checker.probes, 2)
	})

	s.Run("budget never exceeds the configured maximum", func() {
		s.checker.probes = nil
		s.checker.taken = map[models.ReferralCode]bool{"AAAAAAAA": true, "BBBBBBBB": true}
		g := New(s.checker, WithMaxAttempts(2), WithRandom(scripted("AAAAAAAA", "BBBBBBBB", "CCCCCCCC")))

		_, drawn, err := g.Generate(s.ctx, 10)
		s.True(dErrors.HasCode(err, dErrors.CodeExhaustedRetries))
		s.Equal(2, drawn)
	})

	s.Run("honors a custom attempt budget", func() {
		s.checker.probes = nil
		s.checker.taken = map[models.ReferralCode]bool{"AAAAAAAA": true}
		g := New(s.checker, WithMaxAttempts(1), WithRandom(scripted("AAAAAAAA", "BBBBBBBB")))

		_, _, err := g.Generate(s.ctx, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeExhaustedRetries))
		s.Equal(1, g.MaxAttempts())
	})

	s.Run("checker failure is internal", func() {
		s.checker.err = errors.New("connection reset")
		g := New(s.checker)

		_, _, err := g.Generate(s.ctx, g.MaxAttempts())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *GeneratorSuite) TestWithMaxAttemptsIgnoresNonPositive() {
	g := New(s.checker, WithMaxAttempts(0))
	s.Equal(DefaultMaxAttempts, g.MaxAttempts())
}
