package sentiment

// Polarity word lists for the built-in lexicon. Multi-word entries are
// matched as phrases after text normalization.
var positiveTerms = []string{
	"amazing", "awesome", "beautiful", "best", "brilliant", "charming",
	"convenient", "delightful", "easy", "effective", "efficient", "enjoy",
	"enjoyed", "excellent", "exceptional", "fantastic", "fast", "flawless",
	"friendly", "glad", "good", "great", "happy", "helpful", "impressed",
	"impressive", "intuitive", "love", "loved", "loves", "nice", "outstanding",
	"perfect", "pleasant", "pleased", "polished", "quick", "recommend",
	"recommended", "reliable", "responsive", "satisfied", "seamless", "simple",
	"smooth", "solid", "stable", "superb", "thanks", "thank you", "useful",
	"well done", "wonderful", "works well", "worth it",
}

var negativeTerms = []string{
	"annoying", "awful", "bad", "broke", "broken", "buggy", "clunky",
	"confusing", "crash", "crashed", "crashes", "defective", "disappointed",
	"disappointing", "dislike", "expensive", "fail", "failed", "fails",
	"freezes", "frustrated", "frustrating", "garbage", "hate", "hated",
	"horrible", "inconsistent", "lag", "laggy", "mediocre", "misleading",
	"nightmare", "not good", "not great", "not happy", "not working", "poor",
	"refund", "regret", "rude", "slow", "terrible", "unacceptable",
	"unreliable", "unresponsive", "unusable", "useless", "waste", "worse",
	"worst", "wrong",
}
