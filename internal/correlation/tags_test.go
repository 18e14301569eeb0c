package correlation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"settlement-engine/internal/storage"
	dErrors "settlement-engine/pkg/domain-errors"
)

type TagRegistrySuite struct {
	suite.Suite
	store    *storage.InMemory
	registry *Registry
	ctx      context.Context
	next     uint32
}

func TestTagRegistrySuite(t *testing.T) {
	suite.Run(t, new(TagRegistrySuite))
}

func (s *TagRegistrySuite) SetupTest() {
	s.store = storage.NewInMemory()
	s.next = 1000
	s.registry = New(s.store, storage.Keyspace{Prefix: "p"}, WithRandom(func() uint32 {
		s.next++
		return s.next
	}))
	s.ctx = context.Background()
}

func (s *TagRegistrySuite) TestTagForPersistsBothDirections() {
	tag, err := s.registry.TagFor(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(uint32(1001), tag)

	accountID, err := s.store.Get(s.ctx, "p:tag:1001:accountId")
	s.Require().NoError(err)
	s.Equal("alice", accountID)

	stored, err := s.store.Get(s.ctx, "p:accountId:alice:tag")
	s.Require().NoError(err)
	s.Equal("1001", stored)
}

func (s *TagRegistrySuite) TestTagForReusesExistingTag() {
	first, err := s.registry.TagFor(s.ctx, "alice")
	s.Require().NoError(err)
	second, err := s.registry.TagFor(s.ctx, "alice")
	s.Require().NoError(err)

	s.Equal(first, second)
	s.Equal(2, s.store.Len(), "no extra mapping is written on reuse")
}

func (s *TagRegistrySuite) TestTagForKeepsPreexistingMapping() {
	s.Require().NoError(s.store.Set(s.ctx, "p:accountId:bob:tag", "77"))
	tag, err := s.registry.TagFor(s.ctx, "bob")
	s.Require().NoError(err)
	s.Equal(uint32(77), tag)
}

func (s *TagRegistrySuite) TestAccountForInvertsTagFor() {
	for _, id := range []string{"alice", "bob", "carol"} {
		tag, err := s.registry.TagFor(s.ctx, id)
		s.Require().NoError(err)

		got, err := s.registry.AccountFor(s.ctx, storage.FormatTag(tag))
		s.Require().NoError(err)
		s.Equal(id, got)
	}
}

func (s *TagRegistrySuite) TestAccountForUnknownOrMalformedTag() {
	for _, tag := range []string{"42", "", "abc", "-1", "4294967296"} {
		_, err := s.registry.AccountFor(s.ctx, tag)
		s.True(dErrors.Is(err, dErrors.CodeNotFound), "tag %q", tag)
	}
}

func (s *TagRegistrySuite) TestCorruptStoredTag() {
	s.Require().NoError(s.store.Set(s.ctx, "p:accountId:mallory:tag", "not-a-number"))
	_, err := s.registry.TagFor(s.ctx, "mallory")
	s.True(dErrors.Is(err, dErrors.CodeInternal))
}

func TestDefaultRandomSourceProducesUsableTags(t *testing.T) {
	store := storage.NewInMemory()
	r := New(store, storage.Keyspace{})
	ctx := context.Background()

	tag, err := r.TagFor(ctx, "alice")
	require.NoError(t, err)

	id, err := r.AccountFor(ctx, storage.FormatTag(tag))
	require.NoError(t, err)
	assert.Equal(t, "alice", id)
}
