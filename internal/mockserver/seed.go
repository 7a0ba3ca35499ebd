package mockserver

import (
	"math"
	"math/rand/v2"
	"strconv"

	"github.com/google/uuid"
)

var titles = []string{
	"Throne of Glass", "Crown of Midnight", "Heir of Fire", "Queen of Shadows",
	"A Court of Thorns and Roses", "A Court of Mist and Fury", "A Court of Wings and Ruin",
	"House of Earth and Blood", "House of Sky and Breath",
	"Fourth Wing", "Iron Flame", "Onyx Storm",
	"The Bridge Kingdom", "From Blood and Ash", "Kingdom of the Wicked",
	"The Priory of the Orange Tree", "An Ember in the Ashes", "The Cruel Prince",
	"Shadow and Bone", "Six of Crows", "Ninth House", "A Darker Shade of Magic",
	"Uprooted", "Spinning Silver", "The Night Circus", "Red Queen",
	"The City of Brass", "The Poppy War", "Babel", "The Bear and the Nightingale",
	"Sorcery of Thorns", "The Jasmine Throne", "The Atlas Six", "One Dark Window",
	"Divine Rivals", "A River Enchanted",
}

var authors = []string{
	"Sarah J. Maas", "Rebecca Yarros", "Danielle L. Jensen", "Jennifer L. Armentrout",
	"Kerri Maniscalco", "Samantha Shannon", "Sabaa Tahir", "Holly Black",
	"Leigh Bardugo", "V.E. Schwab", "Naomi Novik", "Erin Morgenstern",
	"Victoria Aveyard", "S.A. Chakraborty", "R.F. Kuang", "Katherine Arden",
	"Margaret Rogerson", "Tasha Suri", "Olivie Blake", "Rachel Gillig", "Rebecca Ross",
}

var descriptions = []string{
	"A sweeping tale of magic, romance, and impossible choices.",
	"Dark secrets and forbidden love in a world of fae and mortals.",
	"Power, betrayal, and a love that could save or destroy everything.",
	"An epic fantasy with dragons, courts, and heart-stopping romance.",
	"Where loyalty is tested and destiny cannot be denied.",
}

var reviewTexts = []string{
	"Could not put it down.",
	"Slow start, great ending.",
	"The world building carries it.",
	"Not for me.",
}

// Seed generates n books with ids "1".."n". The same seed gives the same
// catalogue; review ids are random.
func Seed(n int, seed uint64) []Book {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]Book, 0, n)
	for i := 1; i <= n; i++ {
		b := Book{
			ID:          strconv.Itoa(i),
			Title:       titles[rng.IntN(len(titles))],
			Author:      authors[rng.IntN(len(authors))],
			Price:       math.Round((12.99+rng.Float64()*12)*100) / 100,
			Stock:       5 + rng.IntN(76),
			Description: descriptions[rng.IntN(len(descriptions))],
			Reviews:     []Review{},
		}
		for j := rng.IntN(3); j > 0; j-- {
			b.Reviews = append(b.Reviews, Review{
				ID:     uuid.NewString(),
				Author: authors[rng.IntN(len(authors))],
				Rating: 1 + rng.IntN(5),
				Text:   reviewTexts[rng.IntN(len(reviewTexts))],
			})
		}
		out = append(out, b)
	}
	return out
}
