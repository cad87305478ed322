package importer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"site-registry/internal/models"
	"site-registry/internal/tabular"
)

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name     string
		in       tabular.Cell
		wantNull bool
		want     string
	}{
		{name: "null", in: tabular.Null(), wantNull: true},
		{name: "empty", in: tabular.Text(""), wantNull: true},
		{name: "whitespace only", in: tabular.Text(" \u00a0\t "), wantNull: true},
		{name: "zero width only", in: tabular.Text("\u200b"), wantNull: true},
		{name: "NA token", in: tabular.Text("N/A"), wantNull: true},
		{name: "pandas nan", in: tabular.Text("nan"), wantNull: true},
		{name: "NULL padded", in: tabular.Text(" NULL "), wantNull: true},
		{name: "trims", in: tabular.Text("  Cotonou "), want: "Cotonou"},
		{name: "collapses nbsp", in: tabular.Text("Abomey\u00a0\u00a0Calavi"), want: "Abomey Calavi"},
		{name: "drops zero width", in: tabular.Text("MT\u200bN"), want: "MTN"},
		{name: "inner runs", in: tabular.Text("Porto   -\tNovo"), want: "Porto - Novo"},
		{name: "NA inside text kept", in: tabular.Text("NA 12"), want: "NA 12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanCell(tt.in)
			if tt.wantNull {
				assert.True(t, got.IsNull(), "got %q", got.String())
				return
			}
			assert.Equal(t, tt.want, got.String())
		})
	}

	day := tabular.Time(time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, day, CleanCell(day))
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name   string
		in     tabular.Cell
		want   *float64
		wantOK bool
	}{
		{name: "null", in: tabular.Null(), wantOK: true},
		{name: "integer", in: tabular.Text("42"), want: ptr(42.0), wantOK: true},
		{name: "negative", in: tabular.Text("-1.5"), want: ptr(-1.5), wantOK: true},
		{name: "comma decimal", in: tabular.Text("6,37"), wantOK: false},
		{name: "unit suffix", in: tabular.Text("30m"), wantOK: false},
		{name: "infinity", in: tabular.Text("Inf"), wantOK: false},
		{name: "date cell", in: tabular.Time(time.Now()), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseNumber(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateCoordinates(t *testing.T) {
	lat, lon, err := ValidateCoordinates(tabular.Text("6.3703"), tabular.Text("2.3912"))
	require.NoError(t, err)
	assert.Equal(t, 6.3703, *lat)
	assert.Equal(t, 2.3912, *lon)

	lat, lon, err = ValidateCoordinates(tabular.Null(), tabular.Text("abc"))
	require.NoError(t, err)
	assert.Nil(t, lat)
	assert.Nil(t, lon)

	_, _, err = ValidateCoordinates(tabular.Text("95"), tabular.Text("2.4"))
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "latitude", verr.Field)
	assert.Contains(t, err.Error(), "95")

	_, _, err = ValidateCoordinates(tabular.Text("6"), tabular.Text("181"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "longitude")
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		in      tabular.Cell
		want    string
		wantErr bool
	}{
		{name: "iso", in: tabular.Text("2022-03-15"), want: "2022-03-15"},
		{name: "iso unpadded", in: tabular.Text("2022-3-5"), want: "2022-03-05"},
		{name: "day first wins", in: tabular.Text("03/04/2022"), want: "2022-04-03"},
		{name: "month first when day first impossible", in: tabular.Text("12/31/2022"), want: "2022-12-31"},
		{name: "day first unambiguous", in: tabular.Text("25/12/2021"), want: "2021-12-25"},
		{name: "native date", in: tabular.Time(time.Date(2019, 7, 1, 0, 0, 0, 0, time.UTC)), want: "2019-07-01"},
		{name: "garbage", in: tabular.Text("2022-13-45"), wantErr: true},
		{name: "words", in: tabular.Text("next week"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.in, DefaultDateLayouts)
			if tt.wantErr {
				var verr *models.ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Contains(t, verr.Message, "invalid date format")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Format("2006-01-02"))
		})
	}

	got, err := ParseDate(tabular.Null(), DefaultDateLayouts)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseFlag(t *testing.T) {
	tests := []struct {
		in             tabular.Cell
		want           bool
		wantRecognized bool
	}{
		{in: tabular.Text("Oui"), want: true, wantRecognized: true},
		{in: tabular.Text("YES"), want: true, wantRecognized: true},
		{in: tabular.Text("true"), want: true, wantRecognized: true},
		{in: tabular.Text("1"), want: true, wantRecognized: true},
		{in: tabular.Text("non"), want: false, wantRecognized: true},
		{in: tabular.Text("No"), want: false, wantRecognized: true},
		{in: tabular.Text("0"), want: false, wantRecognized: true},
		{in: tabular.Text("oui\u00a0"), want: true, wantRecognized: true},
		{in: tabular.Null(), want: false, wantRecognized: true},
		{in: tabular.Text("maybe"), want: false, wantRecognized: false},
		{in: tabular.Text("o"), want: false, wantRecognized: false},
	}

	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			got, recognized := ParseFlag(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantRecognized, recognized)
		})
	}
}

func TestSplitCodes(t *testing.T) {
	got := SplitCodes(tabular.Text("lte-800; GSM-900 ,lte-800,,wifi"))
	assert.Equal(t, []string{"LTE-800", "GSM-900", "WIFI"}, got)
	assert.Empty(t, SplitCodes(tabular.Null()))
}

func ptr(f float64) *float64 { return &f }
