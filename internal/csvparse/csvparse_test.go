package csvparse

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orders_etl/internal/etlerr"
	"orders_etl/internal/model"
)

func TestParse(t *testing.T) {
	body := []byte("Date;Country;Revenue\n01/02/2011;Germany;100\n\n   \n02/02/2011;France;250\n")

	table, err := Parse(body, Options{})
	require.NoError(t, err)
	assert.Equal(t, model.Header{"Date", "Country", "Revenue"}, table.Header)
	assert.Equal(t, []model.RawRecord{
		{"01/02/2011", "Germany", "100"},
		{"02/02/2011", "France", "250"},
	}, table.Rows)
	assert.Zero(t, table.SkippedRows)
}

func TestParse_QuotedFields(t *testing.T) {
	body := []byte("Date;Country\n01/02/2011;\"Bosnia; Herzegovina\"\n02/02/2011;\"Cote \"\"d'Ivoire\"\"\"\n")

	table, err := Parse(body, Options{})
	require.NoError(t, err)
	assert.Equal(t, []model.RawRecord{
		{"01/02/2011", "Bosnia; Herzegovina"},
		{"02/02/2011", "Cote \"d'Ivoire\""},
	}, table.Rows)
}

func TestParse_MalformedQuotingFailsUnderSkipPolicy(t *testing.T) {
	body := []byte("Date;Country\n01/02/2011;\"Germany\n02/02/2011;France\n")

	_, err := Parse(body, Options{Policy: RowShapeSkip})
	assert.True(t, etlerr.Is(err, etlerr.KindDecode))
}

func TestParse_StripsByteOrderMark(t *testing.T) {
	body := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Date;Country\n01/02/2011;Germany\n")...)

	table, err := Parse(body, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Date", table.Header[0])
}

func TestParse_Failures(t *testing.T) {
	tests := []struct {
		name string
		body []byte
		want etlerr.Kind
	}{
		{name: "invalid utf8", body: []byte("Date;Country\n01/02/2011;\xff\xfe\n"), want: etlerr.KindDecode},
		{name: "empty object", body: []byte(""), want: etlerr.KindEmptyInput},
		{name: "header only", body: []byte("Date;Country;Revenue\n"), want: etlerr.KindEmptyInput},
		{name: "header and blank lines", body: []byte("Date;Country\n\n\n"), want: etlerr.KindEmptyInput},
		{name: "short row", body: []byte("Date;Country;Revenue\n01/02/2011;Germany\n"), want: etlerr.KindRowShape},
		{name: "long row", body: []byte("Date;Country\n01/02/2011;Germany;100\n"), want: etlerr.KindRowShape},
		{name: "unclosed quote", body: []byte("Date;Country\n01/02/2011;\"Germany\n02/02/2011;France\n03/02/2011;Spain\n"), want: etlerr.KindDecode},
		{name: "bare quote", body: []byte("Date;Country\n01/02/2011;Ger\"many\n"), want: etlerr.KindDecode},
		{name: "quote in header", body: []byte("Da\"te;Country\n01/02/2011;Germany\n"), want: etlerr.KindDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.body, Options{Policy: RowShapeFail})
			require.Error(t, err)
			assert.Equal(t, tt.want, etlerr.KindOf(err))
		})
	}
}

func TestParse_RowShapeErrorCarriesLine(t *testing.T) {
	body := []byte("Date;Country\n01/02/2011;Germany\n02/02/2011\n")

	_, err := Parse(body, Options{})
	var shapeErr *RowShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, 3, shapeErr.Line)
	assert.Equal(t, 2, shapeErr.Want)
	assert.Equal(t, 1, shapeErr.Got)
}

func TestParse_SkipPolicy(t *testing.T) {
	body := []byte("Date;Country\n01/02/2011;Germany\n02/02/2011\n03/02/2011;Spain;x\n04/02/2011;Italy\n")

	table, err := Parse(body, Options{Policy: RowShapeSkip})
	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)
	assert.Equal(t, 2, table.SkippedRows)
}

func TestParse_SkipPolicyAllRowsMalformed(t *testing.T) {
	body := []byte("Date;Country\n02/02/2011\n03/02/2011;Spain;x\n")

	_, err := Parse(body, Options{Policy: RowShapeSkip})
	assert.True(t, etlerr.Is(err, etlerr.KindEmptyInput))
}

func TestParseRowShapePolicy(t *testing.T) {
	p, err := ParseRowShapePolicy("")
	require.NoError(t, err)
	assert.Equal(t, RowShapeFail, p)

	p, err = ParseRowShapePolicy(" SKIP ")
	require.NoError(t, err)
	assert.Equal(t, RowShapeSkip, p)

	_, err = ParseRowShapePolicy("truncate")
	assert.Error(t, err)
}
