package deviation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"route-tracker/internal/geometry"
)

func section(x0, y0, x1, y1 float64) (Section, geometry.Corridor) {
	s := Section{From: geometry.Point{X: x0, Y: y0}, To: geometry.Point{X: x1, Y: y1}}
	c, err := geometry.BuildCorridor(s.From, s.To, DefaultSettings().CorridorRadius)
	if err != nil {
		panic(err)
	}
	return s, c
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"", KindCorridor, false},
		{"corridor", KindCorridor, false},
		{" Perpendicular ", KindPerpendicular, false},
		{"line", KindPerpendicular, false},
		{"polygon", "", true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestNew(t *testing.T) {
	s := Settings{PerpendicularThreshold: 5, CorridorRadius: 6, CorridorMargin: 1}

	p, err := New(KindPerpendicular, s)
	require.NoError(t, err)
	assert.Equal(t, Perpendicular{Threshold: 5}, p)

	p, err = New(KindCorridor, s)
	require.NoError(t, err)
	assert.Equal(t, Corridor{Radius: 6, Margin: 1}, p)
	assert.Equal(t, KindCorridor, p.Kind())

	_, err = New("bogus", s)
	assert.Error(t, err)
}

func TestPerpendicular_ThreeCollinearWaypoints(t *testing.T) {
	// waypoints at 0, 100, 200 m; section 0 is the first 100 m
	s, c := section(0, 0, 100, 0)
	p := Perpendicular{Threshold: 8}

	got, err := p.Deviated(s, c, geometry.Point{X: 50, Y: 20})
	require.NoError(t, err)
	assert.True(t, got)

	got, err = p.Deviated(s, c, geometry.Point{X: 50, Y: -8})
	require.NoError(t, err)
	assert.False(t, got, "threshold itself is on route")
}

func TestPerpendicular_Vertical(t *testing.T) {
	s, c := section(5, 0, 5, 100)
	p := Perpendicular{Threshold: 8}

	got, err := p.Deviated(s, c, geometry.Point{X: -5, Y: 30})
	require.NoError(t, err)
	assert.True(t, got)

	d, err := LineDistance(s, geometry.Point{X: 9, Y: 500})
	require.NoError(t, err)
	assert.InDelta(t, 4.0, d, 1e-12)
}

func TestLineDistance_Diagonal(t *testing.T) {
	s := Section{From: geometry.Point{X: 0, Y: 0}, To: geometry.Point{X: 30, Y: 40}}
	// (40, -30) is 50 m off the line, perpendicular to it
	d, err := LineDistance(s, geometry.Point{X: 40, Y: -30})
	require.NoError(t, err)
	assert.InDelta(t, 50.0, d, 1e-9)
}

func TestLineDistance_Degenerate(t *testing.T) {
	p := geometry.Point{X: 1, Y: 1}
	_, err := LineDistance(Section{From: p, To: p}, geometry.Point{})
	assert.ErrorIs(t, err, geometry.ErrDegenerateSection)

	_, err = Corridor{Radius: 8, Margin: 2}.Deviated(Section{From: p, To: p}, geometry.Corridor{}, geometry.Point{})
	assert.ErrorIs(t, err, geometry.ErrDegenerateSection)
}

func TestCorridor_Deviated(t *testing.T) {
	s, c := section(0, 0, 0, 100)
	p := Corridor{Radius: 8, Margin: 2}

	tests := []struct {
		name string
		pos  geometry.Point
		want bool
	}{
		{"on the section", geometry.Point{X: 0, Y: 60}, false},
		{"inside near the edge", geometry.Point{X: 7, Y: 60}, false},
		{"outside to the side", geometry.Point{X: 12, Y: 60}, true},
		{"beyond the end on the axis", geometry.Point{X: 0, Y: 130}, true},
		{"behind the start but within the margin", geometry.Point{X: 0, Y: -9}, false},
		{"behind the start past the margin", geometry.Point{X: 0, Y: -11}, true},
		{"beside the start within the margin", geometry.Point{X: 9.5, Y: 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Deviated(s, c, tt.pos)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPolicies_DisagreeAlongTrack(t *testing.T) {
	s, c := section(0, 0, 100, 0)
	far := geometry.Point{X: 300, Y: 0}

	line, err := Perpendicular{Threshold: 8}.Deviated(s, c, far)
	require.NoError(t, err)
	rect, err := Corridor{Radius: 8, Margin: 2}.Deviated(s, c, far)
	require.NoError(t, err)

	assert.False(t, line)
	assert.True(t, rect)
}
