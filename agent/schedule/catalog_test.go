package schedule

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := DefaultCatalog()
	require.NoError(t, err)
	return c
}

func TestCatalogResolve(t *testing.T) {
	t.Parallel()
	c := testCatalog(t)

	for _, name := range []string{"Dr. Lee", "dr lee", "Grace Lee", "grace-lee", "Doctor Grace Lee", "LEE"} {
		p, err := c.Resolve(name)
		require.NoError(t, err, name)
		require.Equal(t, "grace-lee", p.ID, name)
	}

	_, err := c.Resolve("Dr. Zhivago")
	require.ErrorIs(t, err, ErrUnknownPractitioner)

	_, err = c.Resolve("  ")
	require.ErrorIs(t, err, ErrUnknownPractitioner)
}

func TestCatalogResolveAmbiguous(t *testing.T) {
	t.Parallel()
	c, err := LoadCatalog(strings.NewReader(`
hours: {open: "09:00", close: "17:00"}
practitioners:
  - {id: ann-lee, name: Ann Lee, specialization: general_dentist}
  - {id: bob-lee, name: Bob Lee, specialization: orthodontist}
`))
	require.NoError(t, err)

	_, err = c.Resolve("Dr. Lee")
	require.ErrorIs(t, err, ErrAmbiguousPractitioner)

	p, err := c.Resolve("Bob Lee")
	require.NoError(t, err)
	require.Equal(t, "bob-lee", p.ID)
}

func TestCatalogCheckSlot(t *testing.T) {
	t.Parallel()
	c := testCatalog(t)
	lee, err := c.Resolve("Dr. Lee")
	require.NoError(t, err)

	slot, err := c.CheckSlot(lee, time.Date(2030, 3, 4, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 30*time.Minute, slot.Duration)

	cases := map[string]time.Time{
		"before opening":  time.Date(2030, 3, 4, 7, 30, 0, 0, time.UTC),
		"runs past close": time.Date(2030, 3, 4, 17, 45, 0, 0, time.UTC),
		"off grid":        time.Date(2030, 3, 4, 10, 10, 0, 0, time.UTC),
		"sunday":          time.Date(2030, 3, 3, 10, 0, 0, 0, time.UTC),
	}
	for name, start := range cases {
		_, err := c.CheckSlot(lee, start)
		require.ErrorIs(t, err, ErrOutsideWorkingHours, name)
	}

	smith, err := c.Resolve("Jane Smith")
	require.NoError(t, err)
	_, err = c.CheckSlot(smith, time.Date(2030, 3, 3, 20, 0, 0, 0, time.UTC))
	require.NoError(t, err, "emergency dentist works sundays and evenings")
}

func TestCatalogSlotsOn(t *testing.T) {
	t.Parallel()
	c := testCatalog(t)
	lee, _ := c.Resolve("Dr. Lee")

	slots := c.SlotsOn(lee, time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC))
	require.Len(t, slots, 20)
	require.Equal(t, 8, slots[0].Start.Hour())
	require.Equal(t, 17, slots[len(slots)-1].Start.Hour())
	require.Equal(t, 30, slots[len(slots)-1].Start.Minute())

	require.Empty(t, c.SlotsOn(lee, time.Date(2030, 3, 3, 0, 0, 0, 0, time.UTC)))
}

func TestCatalogOptionsAndSpecializations(t *testing.T) {
	t.Parallel()
	bangkok, err := time.LoadLocation("Asia/Bangkok")
	require.NoError(t, err)

	c, err := DefaultCatalog(WithSlotDuration(time.Hour), WithLocation(bangkok))
	require.NoError(t, err)
	require.Equal(t, time.Hour, c.SlotDuration())
	require.Equal(t, bangkok, c.Location())

	require.Len(t, c.BySpecialization("oral surgeon"), 1)
	require.Len(t, c.BySpecialization("orthodontist"), 2)
	require.Contains(t, c.Specializations(), "pediatric_dentist")
}

func TestLoadCatalogValidation(t *testing.T) {
	t.Parallel()

	bad := map[string]string{
		"empty":      `practitioners: []`,
		"bad hours":  "hours: {open: \"18:00\", close: \"08:00\"}\npractitioners:\n  - {id: a, name: A B}\n",
		"bad day":    "hours: {open: \"08:00\", close: \"18:00\", days: [funday]}\npractitioners:\n  - {id: a, name: A B}\n",
		"duplicates": "hours: {open: \"08:00\", close: \"18:00\"}\npractitioners:\n  - {id: a, name: A B}\n  - {id: a, name: A C}\n",
	}
	for name, doc := range bad {
		_, err := LoadCatalog(strings.NewReader(doc))
		require.Error(t, err, name)
	}
}
