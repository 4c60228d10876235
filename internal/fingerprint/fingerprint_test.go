package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = "Bằng mắt thường, người tiêu dùng, kể cả người có chuyên môn cũng khó phát hiện " +
	"được các loại phụ gia độc hại có trong thực phẩm. Do đó, nếu không kiểm soát tốt việc " +
	"kinh doanh và sử dụng loại phụ gia này thì nguy cơ ngộ độc cấp tính cũng như bị các bệnh " +
	"mãn tính khó tránh khỏi."

func TestPreprocess(t *testing.T) {
	got := string(Preprocess("Hello, World! ni-trit “quoted” 15,6% ©"))
	assert.Equal(t, "helloworldni-tritquoted156", got)
}

func TestFingerprintWindows(t *testing.T) {
	e := New(2, 3)
	// "abcde": grams ab bc cd de e; windows [ab bc cd] [de e].
	assert.Equal(t, Fingerprint{"cd", "de"}, e.Fingerprint("a b c d e"))
}

func TestFingerprintTieKeepsFirst(t *testing.T) {
	e := New(1, 10)
	assert.Equal(t, Fingerprint{"b"}, e.Fingerprint("abab"))
}

func TestFingerprintLength(t *testing.T) {
	e := New(DefaultNGramSize, DefaultWindowSize)
	fp := e.Fingerprint(sample)
	n := len(Preprocess(sample))
	assert.Equal(t, (n+DefaultWindowSize-1)/DefaultWindowSize, len(fp))
	assert.Empty(t, e.Fingerprint(" ,.;  "))
}

func TestCompare(t *testing.T) {
	e := New(0, 0)
	fp := e.Fingerprint(sample)
	require.NotEmpty(t, fp)

	assert.Equal(t, 1.0, Compare(fp, fp))
	assert.Zero(t, Compare(fp, nil))
	assert.Zero(t, Compare(nil, fp))
	assert.Zero(t, Compare(nil, nil))
}

func TestCompareIsDirectional(t *testing.T) {
	a := Fingerprint{"x", "y"}
	b := Fingerprint{"x", "y", "z", "w"}
	assert.Equal(t, 1.0, Compare(a, b))
	assert.Equal(t, 0.5, Compare(b, a))
}

func TestNearDuplicateScoresHigh(t *testing.T) {
	e := New(0, 0)
	original := e.Fingerprint(sample)
	edited := e.Fingerprint(strings.Replace(sample, "Do đó", "Vì vậy", 1))
	unrelated := e.Fingerprint(strings.Repeat("lorem ipsum dolor sit amet ", 12))

	assert.Greater(t, Compare(edited, original), 0.5)
	assert.Less(t, Compare(unrelated, original), 0.5)
}

func BenchmarkFingerprint(b *testing.B) {
	e := New(0, 0)
	text := strings.Repeat(sample, 50)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		e.Fingerprint(text)
	}
}
