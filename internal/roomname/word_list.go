package roomname

var adjectives = []string{
	"tiny", "happy", "sleepy", "fluffy", "sparkly", "cheery", "silly", "jolly", "cozy", "shiny",
	"golden", "silver", "crimson", "emerald", "purple", "brave", "calm", "swift", "quiet", "bouncy",
	"fuzzy", "plucky", "merry", "peppy", "gentle", "bright", "misty", "sunny", "windy", "frosty",
}

var animals = []string{
	"kitten", "puppy", "bunny", "panda", "koala", "fox", "otter", "hedgehog", "squirrel", "hamster",
	"duckling", "fawn", "lamb", "raccoon", "beaver", "seahorse", "dolphin", "narwhal", "penguin", "heron",
	"flamingo", "pelican", "sparrow", "robin", "toucan", "parrot", "canary", "lynx", "badger", "walrus",
}

var places = []string{
	"meadow", "harbor", "canyon", "ridge", "lagoon", "orchard", "garden", "island", "valley", "summit",
	"grove", "prairie", "delta", "fjord", "glacier", "marsh", "plaza", "bazaar", "lighthouse", "cottage",
	"tavern", "library", "studio", "terrace", "balcony", "pier", "station", "observatory", "attic", "cellar",
}

var things = []string{
	"lantern", "pebble", "compass", "kettle", "teacup", "banjo", "ukulele", "kite", "marble", "button",
	"rocket", "comet", "nebula", "orbit", "muffin", "biscuit", "waffle", "dumpling", "noodle", "pretzel",
	"thimble", "anchor", "feather", "acorn", "pinecone", "seashell", "umbrella", "scarf", "mitten", "candle",
}
