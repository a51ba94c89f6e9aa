package idrac_test

import (
	"math"
	"testing"

	"github.com/geekxflood/idrac2ntfy/idrac"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestIDRAC(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "iDRAC Suite")
}

var _ = Describe("Lookup", func() {
	DescribeTable("known trap suffixes",
		func(suffix, category string, severity idrac.Severity) {
			entry, ok := idrac.Lookup(suffix)
			Expect(ok).To(BeTrue(), "suffix %s should be in the catalog", suffix)
			Expect(entry.Category).To(Equal(category))
			Expect(entry.Severity).To(Equal(severity))
			Expect(entry.Template).NotTo(BeEmpty())
		},
		Entry("test alert (v1 specific trap)", "10892.5.0.10395", "Test Alert", idrac.OK),
		Entry("temperature", "10892.5.3.2.2", "Temperature Critical", idrac.Critical),
		Entry("fan", "10892.5.3.2.5", "Fan Warning", idrac.Warning),
		Entry("power supply", "10892.5.3.2.8", "Power Supply Critical", idrac.Critical),
		Entry("memory", "10892.5.3.2.9", "Memory Warning", idrac.Warning),
		Entry("storage", "10892.5.3.2.12", "Storage Critical", idrac.Critical),
		Entry("processor", "10892.5.3.2.14", "Processor Critical", idrac.Critical),
		Entry("battery", "10892.5.3.2.15", "Battery Warning", idrac.Warning),
		Entry("network", "10892.5.3.2.24", "Network Critical", idrac.Critical),
		Entry("raid", "10892.5.3.2.27", "RAID Controller Warning", idrac.Warning),
		Entry("system event", "10892.5.3.2.17", "System Event", idrac.Unknown),
		Entry("generic root", "10892.5", "iDRAC Alert", idrac.Unknown),
	)

	It("accepts a leading dot", func() {
		_, ok := idrac.Lookup(".10892.5.3.2.6")
		Expect(ok).To(BeTrue())
	})

	It("does not match prefixes or extensions", func() {
		_, ok := idrac.Lookup("10892.5.3.2")
		Expect(ok).To(BeFalse())
		_, ok = idrac.Lookup("10892.5.3.2.6.1")
		Expect(ok).To(BeFalse())
	})

	It("returns independent copies from Entries", func() {
		entries := idrac.Entries()
		Expect(entries).NotTo(BeEmpty())
		entries[0].Category = "mutated"

		for _, e := range idrac.Entries() {
			Expect(e.Category).NotTo(Equal("mutated"))
		}
	})
})

var _ = Describe("Suffix", func() {
	It("strips the Dell enterprise branch", func() {
		suffix, ok := idrac.Suffix(".1.3.6.1.4.1.674.10892.5.3.2.6")
		Expect(ok).To(BeTrue())
		Expect(suffix).To(Equal("10892.5.3.2.6"))
	})

	It("rejects other enterprises", func() {
		_, ok := idrac.Suffix("1.3.6.1.4.1.6740.1")
		Expect(ok).To(BeFalse())
		Expect(idrac.IsDell("1.3.6.1.6.3.1.1.5.3")).To(BeFalse())
	})

	It("resolves full OIDs through LookupOID", func() {
		entry, ok := idrac.LookupOID("1.3.6.1.4.1.674.10892.5.3.2.6")
		Expect(ok).To(BeTrue())
		Expect(entry.Category).To(Equal("Fan Critical"))

		_, ok = idrac.LookupOID("1.3.6.1.6.3.1.1.5.3")
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("VarName", func() {
	DescribeTable("trap variables",
		func(oid, name string) {
			Expect(idrac.VarName(oid)).To(Equal(name))
		},
		Entry("alert message", "1.3.6.1.4.1.674.10892.5.3.1.1", idrac.VarAlertMessage),
		Entry("alert message instance", ".1.3.6.1.4.1.674.10892.5.3.1.1.0", idrac.VarAlertMessage),
		Entry("current status", "1.3.6.1.4.1.674.10892.5.3.1.2", idrac.VarAlertCurrentStatus),
		Entry("message id", "1.3.6.1.4.1.674.10892.5.3.1.4", idrac.VarAlertMessageID),
		Entry("fqdn", "1.3.6.1.4.1.674.10892.5.1.1.1", idrac.VarSystemFQDN),
		Entry("service tag", "1.3.6.1.4.1.674.10892.5.1.1.11", idrac.VarSystemServiceTag),
		Entry("chassis service tag", "1.3.6.1.4.1.674.10892.5.4.300.1", idrac.VarChassisServiceTag),
		Entry("alternative message", "1.3.6.1.4.1.674.10892.5.4.300.1.6", idrac.VarAlertMessage),
		Entry("alternative status", "1.3.6.1.4.1.674.10892.5.4.300.1.8", idrac.VarAlertCurrentStatus),
		Entry("unknown oid passes through", "1.3.6.1.2.1.1.5.0", "1.3.6.1.2.1.1.5.0"),
	)
})

var _ = Describe("Status", func() {
	DescribeTable("code to severity",
		func(code int64, name string, severity idrac.Severity) {
			status, ok := idrac.StatusFromCode(code)
			Expect(ok).To(BeTrue())
			Expect(status.String()).To(Equal(name))
			Expect(status.Severity()).To(Equal(severity))
		},
		Entry("other", int64(1), "other", idrac.OK),
		Entry("unknown", int64(2), "unknown", idrac.Unknown),
		Entry("ok", int64(3), "ok", idrac.OK),
		Entry("non-critical", int64(4), "nonCritical", idrac.Warning),
		Entry("critical", int64(5), "critical", idrac.Critical),
		Entry("non-recoverable", int64(6), "nonRecoverable", idrac.Critical),
	)

	It("rejects codes outside the table", func() {
		for _, code := range []int64{-1, 0, 7, 255, 1<<32 + 5, math.MaxInt64, math.MinInt64} {
			_, ok := idrac.StatusFromCode(code)
			Expect(ok).To(BeFalse(), "code %d", code)
		}
	})
})

var _ = Describe("Severity", func() {
	It("names every value", func() {
		names := map[string]bool{}
		for _, s := range idrac.AllSeverities() {
			names[s.String()] = true
		}
		Expect(names).To(HaveLen(4))
		Expect(names).To(HaveKey("Critical"))
		Expect(names).To(HaveKey("Unknown"))
	})

	It("defaults to Unknown", func() {
		var s idrac.Severity
		Expect(s).To(Equal(idrac.Unknown))
	})
})
