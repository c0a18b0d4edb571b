package sampler

var firstNames = []string{
	"Ada", "Alan", "Amara", "Beatriz", "Bjorn", "Carlos", "Chen", "Dara", "Elena", "Emeka",
	"Fatima", "Felix", "Grace", "Hana", "Ivan", "Jonas", "Keiko", "Lars", "Layla", "Marta",
	"Mateo", "Nadia", "Noah", "Olu", "Priya", "Quinn", "Rosa", "Sami", "Tariq", "Yara",
}

var lastNames = []string{
	"Abbott", "Becker", "Costa", "Dubois", "Eriksen", "Fischer", "Garcia", "Haddad", "Ito", "Jensen",
	"Kowalski", "Larsen", "Moreau", "Nakamura", "Okafor", "Petrov", "Quiroga", "Rossi", "Silva", "Tanaka",
}

var petNames = []string{
	"Bella", "Biscuit", "Charlie", "Cleo", "Coco", "Daisy", "Felix", "Ginger", "Loki", "Luna",
	"Max", "Milo", "Nala", "Oscar", "Pepper", "Rex", "Rocky", "Simba", "Toby", "Ziggy",
}

var animalKinds = []string{
	"bear", "bird", "cat", "cow", "crocodilia", "dog", "fish",
	"horse", "insect", "lion", "rabbit", "rodent", "snake",
}

var animalSubtypes = map[string][]string{
	"bear":       {"American Black Bear", "Brown Bear", "Polar Bear", "Sun Bear"},
	"bird":       {"Budgerigar", "Cockatiel", "Canary", "African Grey Parrot"},
	"cat":        {"Maine Coon", "Siamese", "Persian", "Bengal"},
	"cow":        {"Holstein", "Jersey", "Highland", "Angus"},
	"crocodilia": {"Nile Crocodile", "American Alligator", "Spectacled Caiman"},
	"dog":        {"Labrador Retriever", "Beagle", "Dachshund", "Border Collie"},
	"fish":       {"Goldfish", "Betta", "Guppy", "Neon Tetra"},
	"horse":      {"Arabian", "Shetland Pony", "Clydesdale", "Appaloosa"},
	"insect":     {"Stick Insect", "Honey Bee", "Ladybird", "Praying Mantis"},
	"lion":       {"Asiatic Lion", "Barbary Lion", "Masai Lion"},
	"rabbit":     {"Holland Lop", "Rex", "Netherland Dwarf", "Flemish Giant"},
	"rodent":     {"Hamster", "Guinea Pig", "Chinchilla", "Gerbil"},
	"snake":      {"Corn Snake", "Ball Python", "King Snake", "Garter Snake"},
}
