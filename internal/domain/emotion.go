package domain

import "time"

// Emotion is the primary label produced by the emotion classifier.
type Emotion string

const (
	EmotionNeutral     Emotion = "neutral"
	EmotionAnxiety     Emotion = "anxiety"
	EmotionSadness     Emotion = "sadness"
	EmotionAnger       Emotion = "anger"
	EmotionFear        Emotion = "fear"
	EmotionGuilt       Emotion = "guilt"
	EmotionShame       Emotion = "shame"
	EmotionLoneliness  Emotion = "loneliness"
	EmotionFrustration Emotion = "frustration"
	EmotionConfusion   Emotion = "confusion"
	EmotionJoy         Emotion = "joy"
	EmotionGratitude   Emotion = "gratitude"
	EmotionHope        Emotion = "hope"
	EmotionCalm        Emotion = "calm"
)

// Category groups emotions by valence.
type Category string

const (
	CategoryPositive Category = "positive"
	CategoryNegative Category = "negative"
	CategoryNeutral  Category = "neutral"
)

// Intensity trend relative to recent history.
const (
	IntensityIncreasing = "increasing"
	IntensityDecreasing = "decreasing"
	IntensityStable     = "stable"
)

// Session trend over the last few analyses.
const (
	TrendWorsening = "worsening"
	TrendImproving = "improving"
	TrendStable    = "stable"
)

const (
	MinIntensity = 1
	MaxIntensity = 10
)

// ClampIntensity keeps an intensity inside [MinIntensity, MaxIntensity].
func ClampIntensity(v int) int {
	if v < MinIntensity {
		return MinIntensity
	}
	if v > MaxIntensity {
		return MaxIntensity
	}
	return v
}

// EmotionAnalysis is the emotional/topical reading of one message.
type EmotionAnalysis struct {
	MainEmotion       Emotion   `json:"main_emotion"`
	Intensity         int       `json:"intensity"`
	Category          Category  `json:"category"`
	Secondary         []Emotion `json:"secondary,omitempty"`
	Subtype           string    `json:"subtype,omitempty"`
	Topic             string    `json:"topic,omitempty"`
	Topics            []string  `json:"topics,omitempty"`
	Confidence        float64   `json:"confidence"`
	RequiresAttention bool      `json:"requires_attention"`
	IntensityTrend    string    `json:"intensity_trend,omitempty"`
}

// TimedAnalysis is an analysis stamped with the moment it entered the session buffer.
type TimedAnalysis struct {
	Analysis EmotionAnalysis `json:"analysis"`
	At       time.Time       `json:"at"`
}

// EmotionalTrends summarises a user's session buffer.
type EmotionalTrends struct {
	Entries          int     `json:"entries"`
	NegativeStreak   int     `json:"negative_streak"`
	AnxietyStreak    int     `json:"anxiety_streak"`
	SadnessStreak    int     `json:"sadness_streak"`
	Volatility       float64 `json:"volatility"`
	AverageIntensity float64 `json:"average_intensity"`
	DominantEmotion  Emotion `json:"dominant_emotion,omitempty"`
	Trend            string  `json:"trend"`
}
