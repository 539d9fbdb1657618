package convert

// Progress receives progress of the long-running phases of a run.
type Progress interface {
	Start(label string, total int)
	Update(done int)
	Finish()
}

// NopProgress discards progress.
type NopProgress struct{}

func (NopProgress) Start(string, int) {}
func (NopProgress) Update(int)        {}
func (NopProgress) Finish()           {}

// mergeProgress adapts per-entry merge callbacks to a Progress.
func mergeProgress(p Progress) func(archive string, done, total int) {
	return func(archive string, done, total int) {
		if done == 1 {
			p.Start("Merging "+archive, total)
		}
		p.Update(done)
		if done == total {
			p.Finish()
		}
	}
}
