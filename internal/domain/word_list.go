package domain

// Words are kept short so any adjective-noun-digit combination fits within
// MaxDisplayNameLen.
var guestAdjectives = []string{
	"tiny", "happy", "sleepy", "fluffy", "cheery", "silly", "jolly", "cozy",
	"shiny", "golden", "silver", "bright", "gentle", "brave", "calm", "swift",
	"silent", "bouncy", "fuzzy", "plucky", "merry", "peppy",
}

var guestNouns = []string{
	"kitten", "puppy", "bunny", "panda", "koala", "fox", "otter", "hamster",
	"fawn", "lamb", "raccoon", "ferret", "beaver", "dolphin", "narwhal",
	"penguin", "sparrow", "robin", "toucan", "parrot", "canary",
}
