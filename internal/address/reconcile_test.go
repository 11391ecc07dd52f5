package address

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/provider-validator/internal/model"
)

func TestReconcile_SuffixVariantAutoCorrects(t *testing.T) {
	v := Reconcile("123 Main Street, Springfield, IL 62701", "123 Main St, Springfield, IL 62701")

	assert.Equal(t, model.AddressAutoCorrect, v.Action)
	assert.Equal(t, "123 Main St, Springfield, IL 62701", v.CorrectedValue)
	assert.InDelta(t, 0.89, v.Confidence, 0.001)
}

func TestReconcile_StreetLinesOnly(t *testing.T) {
	v := Reconcile("123 Main Street", "123 Main St")
	assert.Equal(t, model.AddressAutoCorrect, v.Action)
	assert.Equal(t, "123 Main St", v.CorrectedValue)
}

func TestReconcile_HouseNumberMismatch(t *testing.T) {
	v := Reconcile("456 Main St, Springfield, IL 62701", "123 Main St, Springfield, IL 62701")

	assert.Equal(t, model.AddressFlag, v.Action)
	assert.Contains(t, v.Reason, "House Number Mismatch")
	assert.Contains(t, v.Reason, "456 vs 123")
	assert.Empty(t, v.CorrectedValue)
}

func TestReconcile_ZipMismatch(t *testing.T) {
	v := Reconcile("123 Main St, Springfield, IL 62701", "123 Main St, Springfield, IL 62704")

	assert.Equal(t, model.AddressFlag, v.Action)
	assert.Contains(t, v.Reason, "Zip Code Mismatch")
}

func TestReconcile_ExactMatchIgnoresCaseAndPunctuation(t *testing.T) {
	v := Reconcile("123 MAIN ST., SPRINGFIELD, IL 62701", "123 Main St, Springfield, IL 62701-4410")
	assert.Equal(t, model.AddressVerified, v.Action)
}

func TestReconcile_Typo(t *testing.T) {
	v := Reconcile("123 Mane St, Springfield, IL 62701", "123 Main St, Springfield, IL 62701")
	assert.Equal(t, model.AddressAutoCorrect, v.Action)
	assert.InDelta(t, 0.86, v.Confidence, 0.001)
}

func TestReconcile_StreetTooDifferent(t *testing.T) {
	v := Reconcile("123 Oak Ave, Springfield, IL 62701", "123 Main St, Springfield, IL 62701")
	assert.Equal(t, model.AddressFlag, v.Action)
	assert.Contains(t, v.Reason, "street name too different")
}

func TestReconcile_Unparseable(t *testing.T) {
	v := Reconcile("PO Box 9, Springfield, IL 62701", "123 Main St, Springfield, IL 62701")
	assert.Equal(t, model.AddressManualReview, v.Action)
	assert.Contains(t, v.Reason, "unparseable format")

	v = Reconcile("123 Main St", "")
	assert.Equal(t, model.AddressManualReview, v.Action)
}

func TestReconcile_HouseNumberMismatchDominates(t *testing.T) {
	streets := []string{"Main St", "Main Street", "Oak Ave", "Mane St"}
	for _, street := range streets {
		for n := 1; n < 40; n++ {
			sub := fmt.Sprintf("%d %s, Springfield, IL 62701", n, street)
			auth := fmt.Sprintf("%d %s, Springfield, IL 62701", n+1, street)
			v := Reconcile(sub, auth)
			assert.Equal(t, model.AddressFlag, v.Action, "%s vs %s", sub, auth)
		}
	}
}

func TestReconcile_IdenticalStreetIsVerified(t *testing.T) {
	streets := []string{"Main St", "North Lake Blvd", "5th Ave Suite 200", "Calle Jose"}
	for _, street := range streets {
		for _, n := range []string{"1", "42", "123A", "1200-1204"} {
			addr := fmt.Sprintf("%s %s, Austin, TX 78701", n, street)
			assert.Equal(t, model.AddressVerified, Reconcile(addr, addr).Action, addr)
		}
	}
}

func TestReconcile_NearIdenticalLongStreetNotVerified(t *testing.T) {
	v := Reconcile(
		"10 Martin Luther King Junior Memorial Av, Springfield, IL 62701",
		"10 Martin Luther King Junior Memorial Ave, Springfield, IL 62701",
	)
	assert.Equal(t, model.AddressAutoCorrect, v.Action)
	assert.Equal(t, "10 Martin Luther King Junior Memorial Ave, Springfield, IL 62701", v.CorrectedValue)
	assert.Less(t, v.Confidence, 1.0)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 100, Similarity("1 Main St", "1 main st"))
	assert.Equal(t, 89, Similarity("1 Main Street", "1 Main St"))
	assert.Equal(t, 0, Similarity("no number", "1 Main St"))
}
