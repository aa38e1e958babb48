// Package tokenizer 提供统一的分词接口。
// 支持 tiktoken 精确编码/解码与 CJK 感知估算器，用于分块窗口计算。
package tokenizer
