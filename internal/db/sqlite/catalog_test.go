package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
)

// CatalogSuite is a test suite for CatalogStore operations.
type CatalogSuite struct {
	suite.Suite
	store   *Store
	catalog *CatalogStore
	cleanup func()
}

func (s *CatalogSuite) SetupTest() {
	s.store, s.cleanup = testStore(s.T())
	s.catalog = NewCatalogStore(s.store)
}

func (s *CatalogSuite) TearDownTest() {
	if s.cleanup != nil {
		s.cleanup()
	}
}

func TestCatalogSuite(t *testing.T) {
	suite.Run(t, new(CatalogSuite))
}

// TestAppendAndGet tests that an appended record comes back complete.
func (s *CatalogSuite) TestAppendAndGet() {
	ctx := context.Background()

	key, err := s.catalog.Append(ctx, "Física Básica", "science", "http://x")
	s.Require().NoError(err)
	s.NotEmpty(key)

	course, err := s.catalog.Get(ctx, key)
	s.Require().NoError(err)
	s.Require().NotNil(course)
	s.Equal(key, course.Key)
	s.Equal("Física Básica", course.Name)
	s.Equal("science", course.Category)
	s.Equal("http://x", course.Link)
}

// TestGetUnknownKey tests that a missing key yields nil, not an error.
func (s *CatalogSuite) TestGetUnknownKey() {
	course, err := s.catalog.Get(context.Background(), "no-such-key")
	s.NoError(err)
	s.Nil(course)
}

// TestListOrder tests that List preserves insertion order.
func (s *CatalogSuite) TestListOrder() {
	ctx := context.Background()

	k1, err := s.catalog.Append(ctx, "Cálculo I", "math", "http://a")
	s.Require().NoError(err)
	k2, err := s.catalog.Append(ctx, "Química Orgânica", "science", "http://b")
	s.Require().NoError(err)
	k3, err := s.catalog.Append(ctx, "Redação Nota 1000", "writing", "http://c")
	s.Require().NoError(err)

	courses, err := s.catalog.List(ctx)
	s.Require().NoError(err)
	s.Require().Len(courses, 3)
	s.Equal([]string{k1, k2, k3}, []string{courses[0].Key, courses[1].Key, courses[2].Key})
}

// TestListEmpty tests listing an empty catalog.
func (s *CatalogSuite) TestListEmpty() {
	courses, err := s.catalog.List(context.Background())
	s.NoError(err)
	s.Empty(courses)
}

// TestUpdateField tests single-field replacement.
func (s *CatalogSuite) TestUpdateField() {
	ctx := context.Background()

	key, err := s.catalog.Append(ctx, "Cálculo I", "math", "http://old")
	s.Require().NoError(err)

	tests := []struct {
		name  string
		field string
		value string
	}{
		{
			name:  "replace link",
			field: "link",
			value: "http://new",
		},
		{
			name:  "replace name",
			field: "name",
			value: "Cálculo II",
		},
		{
			name:  "replace category",
			field: "category",
			value: "tech",
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.NoError(s.catalog.UpdateField(ctx, key, tt.field, tt.value))
		})
	}

	course, err := s.catalog.Get(ctx, key)
	s.Require().NoError(err)
	s.Equal("Cálculo II", course.Name)
	s.Equal("tech", course.Category)
	s.Equal("http://new", course.Link)
}

// TestUpdateFieldNotFound tests updating a missing key.
func (s *CatalogSuite) TestUpdateFieldNotFound() {
	err := s.catalog.UpdateField(context.Background(), "no-such-key", "link", "http://x")
	s.ErrorIs(err, ErrNotFound)
}

// TestUpdateFieldUnknownField tests the field whitelist.
func (s *CatalogSuite) TestUpdateFieldUnknownField() {
	ctx := context.Background()
	key, err := s.catalog.Append(ctx, "Cálculo I", "math", "http://x")
	s.Require().NoError(err)

	err = s.catalog.UpdateField(ctx, key, "key", "evil")
	s.Error(err)
	s.NotErrorIs(err, ErrNotFound)
}

// TestRemove tests deletion by key.
func (s *CatalogSuite) TestRemove() {
	ctx := context.Background()

	key, err := s.catalog.Append(ctx, "Cálculo I", "math", "http://x")
	s.Require().NoError(err)

	s.NoError(s.catalog.Remove(ctx, key))

	course, err := s.catalog.Get(ctx, key)
	s.NoError(err)
	s.Nil(course)

	// Second remove reports not found
	s.ErrorIs(s.catalog.Remove(ctx, key), ErrNotFound)
}
