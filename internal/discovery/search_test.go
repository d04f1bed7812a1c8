package discovery

import (
	"testing"

	"kinship/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_NamesAndHandles(t *testing.T) {
	f := newFixture(t)
	f.profile("viewer")
	f.profile("jose", func(p *models.Profile) {
		p.DisplayName = "José Álvarez"
		p.Handle = "jalvarez"
	})
	f.profile("maria", func(p *models.Profile) {
		p.DisplayName = "Maria"
		p.Handle = "maria_lopez"
	})
	f.profile("josephine", func(p *models.Profile) {
		p.DisplayName = "Josephine Baker"
		p.Handle = "jb"
	})

	page, err := f.engine.Search(f.ctx, "viewer", "JOS", FieldName, Filters{}, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"josephine", "jose"}, users(page), "newest activity first")

	page, err = f.engine.Search(f.ctx, "viewer", "jose alv", FieldAny, Filters{}, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"jose"}, users(page))

	page, err = f.engine.Search(f.ctx, "viewer", "lopez", FieldHandle, Filters{}, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"maria"}, users(page))

	page, err = f.engine.Search(f.ctx, "viewer", "lopez", FieldName, Filters{}, "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestSearch_AppliesExclusions(t *testing.T) {
	f := newFixture(t)
	f.profile("viewer")
	f.profile("sam_one")
	f.profile("sam_two")
	f.profile("sam_teen", teen)
	_, err := f.rel.Block(f.ctx, "sam_two", "viewer")
	require.NoError(t, err)

	page, err := f.engine.Search(f.ctx, "viewer", "sam", FieldAny, Filters{}, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"sam_one"}, users(page))
}

func TestSearch_Paginates(t *testing.T) {
	f := newFixture(t)
	f.profile("viewer")
	for _, u := range []string{"alex_a", "alex_b", "alex_c", "alex_d", "alex_e"} {
		f.profile(u)
	}

	var got []string
	cursor := ""
	for {
		page, err := f.engine.Search(f.ctx, "viewer", "alex", FieldHandle, Filters{}, cursor, 2)
		require.NoError(t, err)
		got = append(got, users(page)...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, []string{"alex_e", "alex_d", "alex_c", "alex_b", "alex_a"}, got)

	first, err := f.engine.Search(f.ctx, "viewer", "alex", FieldHandle, Filters{}, "", 2)
	require.NoError(t, err)
	_, err = f.engine.Search(f.ctx, "viewer", "alexa", FieldHandle, Filters{}, first.NextCursor, 2)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestSearch_InvalidArguments(t *testing.T) {
	f := newFixture(t)
	f.profile("viewer")

	_, err := f.engine.Search(f.ctx, "viewer", "  !! ", FieldAny, Filters{}, "", 10)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	_, err = f.engine.Search(f.ctx, "viewer", "sam", Field("bio"), Filters{}, "", 10)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	_, err = f.engine.Search(f.ctx, "viewer", "sam", FieldAny, Filters{}, "", -1)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestSearch_FiltersNarrowTheTextScan(t *testing.T) {
	f := newFixture(t)
	f.engine = NewEngine(f.store, 3, nil)
	f.profile("viewer")
	for i := 0; i < 12; i++ {
		f.profile("sam_us_" + string(rune('a'+i)))
	}
	f.profile("sam_fr", func(p *models.Profile) { p.Country = "FR" })
	f.profile("sam_w", func(p *models.Profile) { p.Gender = models.GenderFemale })

	page, err := f.engine.Search(f.ctx, "viewer", "sam", FieldAny, Filters{Country: "FR"}, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"sam_fr"}, users(page))

	page, err = f.engine.Search(f.ctx, "viewer", "sam", FieldHandle, Filters{Gender: models.GenderFemale}, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"sam_w"}, users(page))

	page, err = f.engine.Search(f.ctx, "viewer", "sam", FieldName, Filters{}, "", 10)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(page.Items), 3, "an unfiltered scan stops at the limit")
}
