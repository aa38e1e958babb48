// Package embedding 提供统一的嵌入提供者接口和实现.
//
// 提供者把文本映射为固定维度的稠密向量，区分查询（RETRIEVAL_QUERY）
// 与文档（RETRIEVAL_DOCUMENT）两种任务提示。维度在单个提供者实例内
// 固定，必须与向量索引的构建维度一致；维度不匹配属于外部配置错误，
// 本包不做校验。
//
// 提供者调用失败返回 EMBEDDING_PROVIDER 结构化错误；本包不做重试，
// 重试/退避策略由调用方决定。
package embedding
