package tokenizer

// RuneTokenizer 把每个 rune 当作一个 token。
// 编码/解码完全可逆且无需外部编码数据，适合测试和
// 无法下载 tiktoken 数据的离线环境下的窗口分块。
type RuneTokenizer struct {
	maxTokens int
}

// NewRuneTokenizer 创建 rune 级分词器。
func NewRuneTokenizer(maxTokens int) *RuneTokenizer {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &RuneTokenizer{maxTokens: maxTokens}
}

func (t *RuneTokenizer) CountTokens(text string) (int, error) {
	count := 0
	for range text {
		count++
	}
	return count, nil
}

func (t *RuneTokenizer) Encode(text string) ([]int, error) {
	runes := []rune(text)
	tokens := make([]int, len(runes))
	for i, r := range runes {
		tokens[i] = int(r)
	}
	return tokens, nil
}

func (t *RuneTokenizer) Decode(tokens []int) (string, error) {
	runes := make([]rune, len(tokens))
	for i, tok := range tokens {
		runes[i] = rune(tok)
	}
	return string(runes), nil
}

func (t *RuneTokenizer) MaxTokens() int {
	return t.maxTokens
}

func (t *RuneTokenizer) Name() string {
	return "runes"
}
