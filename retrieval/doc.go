// Package retrieval 实现混合检索融合核心:
// 向量通道与关键词通道并发检索, 按 chunk_id 合并去重,
// 以 alpha 加权线性组合排序后返回 Top-K 上下文.
//
// 引擎自身无状态, 依赖注入的 embedding.Provider / VectorIndex /
// KeywordIndex 需各自保证并发安全. 单通道故障降级为空结果,
// 双通道同时不可用才会以 RetrievalUnavailable 失败.
package retrieval
