package show

// Clone returns a deep copy of the state. The serialiser hands clones to
// its sinks so that persistence and broadcast never observe a state the
// conductor is still mutating.
func (s *State) Clone() *State {
	out := *s

	if s.PausedPhase != nil {
		p := *s.PausedPhase
		out.PausedPhase = &p
	}

	out.Rows = make([]*Row, len(s.Rows))
	for i, r := range s.Rows {
		out.Rows[i] = r.clone()
	}

	out.Factions = make([]*Faction, len(s.Factions))
	for i, f := range s.Factions {
		out.Factions[i] = f.clone()
	}

	out.Users = make(UserMap, len(s.Users))
	for id, u := range s.Users {
		cu := *u
		if u.Faction != nil {
			f := *u.Faction
			cu.Faction = &f
		}
		out.Users[id] = &cu
	}

	out.Votes = append([]Vote(nil), s.Votes...)

	out.Trees = make(TreeMap, len(s.Trees))
	for id, t := range s.Trees {
		ct := *t
		ct.Path = append([]OptionID(nil), t.Path...)
		if t.FigTreeResponse != nil {
			r := *t.FigTreeResponse
			ct.FigTreeResponse = &r
		}
		out.Trees[id] = &ct
	}

	out.Paths = DualPaths{
		FactionPath: append([]OptionID(nil), s.Paths.FactionPath...),
		PopularPath: append([]OptionID(nil), s.Paths.PopularPath...),
	}

	out.Config = s.Config.clone()
	return &out
}

func (r *Row) clone() *Row {
	out := *r
	out.Options = append([]Option(nil), r.Options...)
	if r.CommittedOption != nil {
		o := *r.CommittedOption
		out.CommittedOption = &o
	}
	if r.AuditionIndex != nil {
		i := *r.AuditionIndex
		out.AuditionIndex = &i
	}
	return &out
}

func (f *Faction) clone() *Faction {
	out := *f
	out.CoupVotes = make(UserSet, len(f.CoupVotes))
	for id := range f.CoupVotes {
		out.CoupVotes[id] = struct{}{}
	}
	return &out
}

func (c Config) clone() Config {
	out := c
	out.Rows = make([]RowConfig, len(c.Rows))
	for i, rc := range c.Rows {
		out.Rows[i] = rc
		out.Rows[i].Options = append([]OptionConfig(nil), rc.Options...)
	}
	out.Factions = append([]FactionConfig(nil), c.Factions...)
	return out
}
