package extract

import (
	"context"
	"math"
	"strings"

	"muza/internal/logging"
	"muza/internal/profile"
)

// Okapi BM25 tuning. Standard Robertson defaults.
const (
	lexicalK1 = 1.5
	lexicalB  = 0.75

	// confLexicalCap keeps lexical hits below every deterministic rule
	// hit, so rules win fusion ties.
	confLexicalCap = 0.75
)

// tagDocument is the term expansion for one closed-vocabulary tag. The
// lexical strategy ranks these documents against the utterance, which
// catches wordings the rule patterns miss ("хочу посмотреть на полотна
// импрессионистов" still lands on живопись).
type tagDocument struct {
	field profile.Field
	value string
	terms string
}

var tagDocuments = []tagDocument{
	{profile.FieldInterests, "современное искусство", "современное искусство инсталляция перформанс медиа авангард актуальный"},
	{profile.FieldInterests, "фотография", "фотография фото снимок кадр камера фотограф дагерротип"},
	{profile.FieldInterests, "живопись", "живопись картина полотно холст художник импрессионизм пейзаж"},
	{profile.FieldInterests, "искусство", "искусство художественный эстетика творчество галерея"},
	{profile.FieldInterests, "история", "история эпоха артефакт археология древность прошлое летопись"},
	{profile.FieldInterests, "наука", "наука эксперимент физика биология открытие лаборатория"},
	{profile.FieldInterests, "технологии", "технологии техника цифровой робот инновация виртуальный"},
	{profile.FieldInterests, "музыка", "музыка концерт звук мелодия инструмент оркестр"},
	{profile.FieldInterests, "поэзия", "поэзия стихи поэт рифма строфа лирика"},
	{profile.FieldInterests, "литература", "литература книга писатель роман проза чтение"},
	{profile.FieldInterests, "архитектура", "архитектура здание фасад конструктивизм пространство"},
	{profile.FieldInterests, "скульптура", "скульптура статуя бронза мрамор пластика"},
	{profile.FieldInterests, "классика", "классика классический традиция шедевр академический"},
	{profile.FieldInterests, "интерактив", "интерактив интерактивный игра квест погружение руками"},
	{profile.FieldMood, profile.MoodSad, "грустный печальный меланхолия созерцание размышление тихий"},
	{profile.FieldMood, profile.MoodHappy, "веселый радостный яркий праздник бодрый"},
	{profile.FieldMood, profile.MoodRomantic, "романтика романтичный свидание двоих вечер"},
	{profile.FieldMood, profile.MoodCalm, "спокойный умиротворение тишина медитация неспешный"},
}

type lexicalDoc struct {
	field profile.Field
	value string
	tf    map[string]int
	len   int
}

type lexicalStrategy struct {
	docs   []lexicalDoc
	idf    map[string]float64
	avgLen float64
	log    logging.Logger
}

// NewLexicalStrategy builds the BM25 index over the tag documents. The
// index is immutable after construction and safe for concurrent use.
func NewLexicalStrategy(log logging.Logger) Strategy {
	docs := make([]lexicalDoc, 0, len(tagDocuments))
	df := make(map[string]int)
	totalLen := 0

	for _, td := range tagDocuments {
		tf := make(map[string]int)
		for _, term := range stemmedTerms(td.terms) {
			tf[term]++
		}
		doc := lexicalDoc{field: td.field, value: td.value, tf: tf, len: len(tf)}
		docs = append(docs, doc)
		totalLen += doc.len
		for term := range tf {
			df[term]++
		}
	}

	// Lucene-style smoothing: log((N+1)/(df+1)) + 1 keeps IDF >= 1 and
	// avoids zero division.
	n := len(docs)
	idf := make(map[string]float64, len(df))
	for term, docFreq := range df {
		idf[term] = math.Log(float64(n+1)/float64(docFreq+1)) + 1.0
	}

	return &lexicalStrategy{
		docs:   docs,
		idf:    idf,
		avgLen: float64(totalLen) / float64(n),
		log:    logging.OrNop(log),
	}
}

func (s *lexicalStrategy) Name() string { return StrategyLexical }

func (s *lexicalStrategy) Extract(_ context.Context, utterance string) ([]profile.Evidence, error) {
	terms := stemmedTerms(utterance)
	if len(terms) == 0 {
		return nil, nil
	}
	querySet := make(map[string]bool, len(terms))
	for _, t := range terms {
		querySet[t] = true
	}

	scores := make([]float64, len(s.docs))
	var maxScore float64
	for i, doc := range s.docs {
		score := s.scoreDoc(querySet, doc)
		scores[i] = score
		if score > maxScore {
			maxScore = score
		}
	}
	if maxScore == 0 {
		return nil, nil
	}

	var out []profile.Evidence
	for i, doc := range s.docs {
		if scores[i] == 0 {
			continue
		}
		normalized := scores[i] / maxScore
		out = append(out, profile.Evidence{
			Field:      doc.field,
			Value:      doc.value,
			Confidence: math.Min(normalized, confLexicalCap),
			Strategy:   StrategyLexical,
		})
	}
	s.log.Debug("lexical produced %d evidence items (max raw score %.3f)", len(out), maxScore)
	return out, nil
}

func (s *lexicalStrategy) scoreDoc(query map[string]bool, doc lexicalDoc) float64 {
	dl := float64(doc.len)
	var score float64
	for term := range query {
		tf, ok := doc.tf[term]
		if !ok {
			continue
		}
		termIDF, ok := s.idf[term]
		if !ok {
			continue
		}
		numerator := float64(tf) * (lexicalK1 + 1)
		denominator := float64(tf) + lexicalK1*(1.0-lexicalB+lexicalB*dl/s.avgLen)
		score += termIDF * (numerator / denominator)
	}
	return score
}

// ruSuffixes are stripped longest first; a match only applies when at
// least four runes remain. This folds the common case endings so
// "фотографию" and "фотография" share a stem.
var ruSuffixes = []string{
	"иями", "ями", "ами", "ого", "его", "ому", "ему", "ыми", "ими",
	"ах", "ях", "ую", "юю", "ая", "яя", "ое", "ее", "ой", "ей",
	"ий", "ый", "ые", "ие", "их", "ом", "ем", "ов", "ев", "ии", "ия", "ию",
	"ы", "и", "а", "я", "у", "ю", "о", "е", "ь", "й",
}

func stemRussian(token string) string {
	runes := []rune(token)
	for _, suffix := range ruSuffixes {
		sr := []rune(suffix)
		if len(runes)-len(sr) < 4 {
			continue
		}
		if strings.HasSuffix(token, suffix) {
			return string(runes[:len(runes)-len(sr)])
		}
	}
	return token
}

func stemmedTerms(text string) []string {
	words := splitWords(strings.ToLower(text))
	out := make([]string, 0, len(words))
	for _, w := range words {
		out = append(out, stemRussian(w))
	}
	return out
}
