package recommend

import (
	"fmt"
	"sort"

	"github.com/patientflow/backend/internal/models"
)

const (
	DefaultPeakThresholdMinutes = 40.0
	DefaultPeakVolumeRatio      = 0.5
)

type Options struct {
	// PeakThresholdMinutes is the summary wait above which a doctor counts as overloaded.
	PeakThresholdMinutes float64
	// PeakVolumeRatio is the waiting/total patient ratio above which the peak advisory fires.
	PeakVolumeRatio float64
}

func DefaultOptions() Options {
	return Options{PeakThresholdMinutes: DefaultPeakThresholdMinutes, PeakVolumeRatio: DefaultPeakVolumeRatio}
}

func (o Options) withDefaults() Options {
	if o.PeakThresholdMinutes <= 0 {
		o.PeakThresholdMinutes = DefaultPeakThresholdMinutes
	}
	if o.PeakVolumeRatio <= 0 {
		o.PeakVolumeRatio = DefaultPeakVolumeRatio
	}
	return o
}

// Recommend derives advisories from a snapshot: one per overloaded doctor in id order, then the
// system-wide peak advisory. An empty result means nothing needs attention.
func Recommend(snap models.Snapshot, opts Options) []string {
	opts = opts.withDefaults()

	doctors := append([]models.DoctorSnapshot(nil), snap.Doctors...)
	sort.Slice(doctors, func(i, j int) bool { return doctors[i].ID < doctors[j].ID })

	out := []string{}
	for _, d := range doctors {
		wait := d.SummaryWait()
		if wait <= opts.PeakThresholdMinutes {
			continue
		}
		if alt, ok := leastLoadedPeer(doctors, d); ok && alt.QueueLength < d.QueueLength {
			out = append(out, fmt.Sprintf(
				"Consider redirecting patients from %s (doctor %d, %s, %d waiting, ~%.0f min) to %s (doctor %d, %d waiting)",
				d.Name, d.ID, d.Specialty, d.QueueLength, wait, alt.Name, alt.ID, alt.QueueLength))
			continue
		}
		out = append(out, fmt.Sprintf(
			"%s (doctor %d, %s) has an estimated wait of ~%.0f min, above the %.0f min threshold. Consider adding support staff or extending hours",
			d.Name, d.ID, d.Specialty, wait, opts.PeakThresholdMinutes))
	}

	c := snap.Counts
	if c.Today > 0 && float64(c.WaitingToday)/float64(c.Today) > opts.PeakVolumeRatio {
		out = append(out, fmt.Sprintf(
			"Peak volume: %d of %d patients today are currently waiting. All staff should be on duty",
			c.WaitingToday, c.Today))
	}
	return out
}

// leastLoadedPeer returns the same-specialty doctor with the shortest queue, lowest id on ties.
// doctors must be sorted by id.
func leastLoadedPeer(doctors []models.DoctorSnapshot, d models.DoctorSnapshot) (models.DoctorSnapshot, bool) {
	var (
		best  models.DoctorSnapshot
		found bool
	)
	for _, p := range doctors {
		if p.ID == d.ID || p.Specialty != d.Specialty {
			continue
		}
		if !found || p.QueueLength < best.QueueLength {
			best, found = p, true
		}
	}
	return best, found
}
