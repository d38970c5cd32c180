package sentiment

// polarity holds per-word scores in [-1, 1], loosely following the pattern.en lexicon.
var polarity = map[string]float64{
	// positive
	"good":        0.7,
	"great":       0.8,
	"fine":        0.4167,
	"nice":        0.6,
	"okay":        0.5,
	"ok":          0.5,
	"happy":       0.8,
	"glad":        0.5,
	"pleased":     0.5,
	"welcome":     0.8,
	"wonderful":   1.0,
	"excellent":   1.0,
	"amazing":     0.6,
	"awesome":     1.0,
	"fantastic":   0.4,
	"brave":       0.8,
	"beautiful":   0.85,
	"lovely":      0.5,
	"love":        0.5,
	"kind":        0.6,
	"thanks":      0.2,
	"thank":       0.2,
	"appreciate":  0.3,
	"respect":     0.3,
	"safe":        0.5,
	"comfortable": 0.4,
	"proud":       0.8,
	"hopeful":     0.5,
	"helpful":     0.5,
	"better":      0.5,
	"best":        1.0,
	"right":       0.2857,
	"sure":        0.5,
	"correct":     0.3,
	"clear":       0.1,
	"calm":        0.3,
	"warm":        0.6,
	"supportive":  0.5,
	"important":   0.4,
	"valid":       0.3,
	"interesting": 0.5,
	"pleasure":    0.6,
	"congrats":    0.6,
	"perfect":     1.0,
	"impressive":  1.0,
	"strong":      0.4333,
	"confident":   0.5,
	"progress":    0.2,
	"understand":  0.1,
	"agree":       0.2,
	// mildly negative
	"sorry":         -0.25,
	"nervous":       -0.2,
	"worried":       -0.3,
	"difficult":     -0.5,
	"hard":          -0.2917,
	"confused":      -0.4,
	"uncomfortable": -0.5,
	// negative
	"bad":        -0.7,
	"terrible":   -1.0,
	"awful":      -1.0,
	"horrible":   -1.0,
	"worst":      -1.0,
	"worse":      -0.4,
	"stupid":     -0.8,
	"dumb":       -0.375,
	"idiot":      -0.8,
	"idiotic":    -0.8,
	"moron":      -0.8,
	"ugly":       -0.7,
	"disgusting": -1.0,
	"gross":      -0.5,
	"pathetic":   -1.0,
	"ridiculous": -0.3333,
	"absurd":     -0.5,
	"crazy":      -0.6,
	"insane":     -1.0,
	"freak":      -0.7,
	"weird":      -0.5,
	"fake":       -0.5,
	"wrong":      -0.5,
	"useless":    -0.5,
	"worthless":  -0.8,
	"hate":       -0.8,
	"hateful":    -0.8,
	"annoying":   -0.8,
	"boring":     -1.0,
	"lazy":       -0.25,
	"sick":       -0.7143,
	"nasty":      -1.0,
	"evil":       -1.0,
	"shameful":   -0.6,
	"shut":       -0.3,
	"liar":       -0.6,
	"lying":      -0.5,
	"unnatural":  -0.5,
	"abnormal":   -0.5,
	"confusing":  -0.3,
	"pretend":    -0.3,
	"pretending": -0.3,
	"delusional": -0.8,
	"mentally":   -0.3,
	"waste":      -0.4,
	"rude":       -0.3,
	"mean":       -0.3125,
	"angry":      -0.5,
	"upset":      -0.4,
	"sad":        -0.5,
	"hurt":       -0.4,
	"scary":      -0.5,
	"dirty":      -0.6,
	"loser":      -0.6,
	"garbage":    -0.8,
	"trash":      -0.6,
	"damn":       -0.3,
	"hell":       -0.4,
}

// intensifiers scale the next polar word.
var intensifiers = map[string]float64{
	"very":       1.3,
	"really":     1.2,
	"so":         1.2,
	"extremely":  1.5,
	"incredibly": 1.4,
	"totally":    1.3,
	"completely": 1.3,
	"absolutely": 1.4,
	"too":        1.2,
	"quite":      1.1,
	"pretty":     1.1,
	"super":      1.3,
	"slightly":   0.6,
	"somewhat":   0.7,
	"barely":     0.5,
}

// negators flip and damp the next polar word within a short window.
var negators = map[string]struct{}{
	"not":     {},
	"no":      {},
	"never":   {},
	"nothing": {},
	"neither": {},
	"nor":     {},
	"hardly":  {},
	"cannot":  {},
	"without": {},
}
