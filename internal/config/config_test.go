package config

import "testing"

func TestLoadAgentDefaults(t *testing.T) {
	t.Setenv("AGENT_CONTEXT_CHUNK_LIMIT", "")
	t.Setenv("AGENT_FALLBACK_THRESHOLD", "")
	t.Setenv("AGENT_LOW_CONFIDENCE_TOP_SCORE", "")
	t.Setenv("AGENT_EXPANSION_THRESHOLD_RATIO", "")
	t.Setenv("AGENT_GENERAL_KNOWLEDGE_ENABLED", "")

	cfg := Load()
	if cfg.AgentContextChunkLimit != 8 {
		t.Fatalf("expected default context chunk limit 8, got %d", cfg.AgentContextChunkLimit)
	}
	if cfg.AgentFallbackThreshold != 0.35 {
		t.Fatalf("expected default fallback threshold 0.35, got %v", cfg.AgentFallbackThreshold)
	}
	if cfg.AgentLowConfidenceTopScore != 0.4 {
		t.Fatalf("expected default low confidence top score 0.4, got %v", cfg.AgentLowConfidenceTopScore)
	}
	if cfg.AgentExpansionRatio != 0.9 {
		t.Fatalf("expected default expansion ratio 0.9, got %v", cfg.AgentExpansionRatio)
	}
	if !cfg.AgentGeneralKnowledgeOn {
		t.Fatalf("expected general knowledge enabled by default")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("AGENT_CONTEXT_CHUNK_LIMIT", "12")
	t.Setenv("AGENT_FALLBACK_THRESHOLD", "0.25")
	t.Setenv("AGENT_GENERAL_KNOWLEDGE_ENABLED", "false")
	t.Setenv("HTTP_REQUESTS_PER_SECOND", "5")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg := Load()
	if cfg.AgentContextChunkLimit != 12 {
		t.Fatalf("expected context chunk limit 12, got %d", cfg.AgentContextChunkLimit)
	}
	if cfg.AgentFallbackThreshold != 0.25 {
		t.Fatalf("expected fallback threshold 0.25, got %v", cfg.AgentFallbackThreshold)
	}
	if cfg.AgentGeneralKnowledgeOn {
		t.Fatalf("expected general knowledge disabled")
	}
	if cfg.HTTPRequestsPerSecond != 5 {
		t.Fatalf("expected 5 requests per second, got %v", cfg.HTTPRequestsPerSecond)
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("expected redis addr override, got %q", cfg.RedisAddr)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("CACHE_MEMORY_CAPACITY", "not-a-number")
	t.Setenv("AGENT_FALLBACK_THRESHOLD", "also-not")

	cfg := Load()
	if cfg.CacheMemoryCapacity != 2048 {
		t.Fatalf("expected fallback capacity 2048, got %d", cfg.CacheMemoryCapacity)
	}
	if cfg.AgentFallbackThreshold != 0.35 {
		t.Fatalf("expected fallback threshold default, got %v", cfg.AgentFallbackThreshold)
	}
}
