package rules

import "github.com/ppiankov/patchpilot/internal/model"

// Key identifies a rule within the catalog.
type Key string

const (
	KeyHardcodedSecret  Key = "hardcoded_secret"
	KeySQLInjection     Key = "sql_injection"
	KeyXSS              Key = "xss_vulnerability"
	KeyWeakCrypto       Key = "weak_crypto"
	KeyInsecureRandom   Key = "insecure_random"
	KeyCommandInjection Key = "command_injection"
	KeyPathTraversal    Key = "path_traversal"
	KeyXXE              Key = "xxe_vulnerability"

	KeyNPlusOne          Key = "n_plus_one"
	KeyInefficientLoop   Key = "inefficient_loop"
	KeySynchronousIO     Key = "synchronous_io"
	KeyMemoryLeak        Key = "memory_leak"
	KeyUnboundedCache    Key = "unbounded_cache"
	KeyBlockingOperation Key = "blocking_operation"

	KeyGodClass      Key = "god_class"
	KeyLongMethod    Key = "long_method"
	KeyDeepNesting   Key = "deep_nesting"
	KeyDuplicateCode Key = "duplicate_code"
	KeyMagicNumbers  Key = "magic_numbers"
	KeyCommentedCode Key = "commented_code"

	KeySSRF                    Key = "ssrf"
	KeyRaceCondition           Key = "race_condition"
	KeyBufferOverflow          Key = "buffer_overflow"
	KeyInsecureDeserialization Key = "insecure_deserialization"
	KeyOpenRedirect            Key = "open_redirect"

	KeyMemoryOptimization     Key = "potential_memory_optimization"
	KeyDataValidationMissing  Key = "data_validation_missing"
	KeyAsyncAwaitMissing      Key = "async_await_missing"
	KeyResourceCleanupMissing Key = "resource_cleanup_missing"

	KeyTightCoupling              Key = "tight_coupling"
	KeyMissingDependencyInjection Key = "missing_dependency_injection"
	KeyCircularDependencyRisk     Key = "circular_dependency_risk"
)

// Title resolves the finding title for a rule. Unknown keys fall back to a
// category-level title, which is never empty.
func Title(cat model.Category, key Key) string {
	switch key {
	case KeyHardcodedSecret:
		return "Hardcoded Credentials Detected"
	case KeySQLInjection:
		return "SQL Injection Vulnerability"
	case KeyXSS:
		return "Cross-Site Scripting (XSS) Vulnerability"
	case KeyWeakCrypto:
		return "Weak Cryptography Algorithm"
	case KeyInsecureRandom:
		return "Insecure Random Number Generation"
	case KeyCommandInjection:
		return "Command Injection Vulnerability"
	case KeyPathTraversal:
		return "Path Traversal Vulnerability"
	case KeyXXE:
		return "XML External Entity (XXE) Vulnerability"
	case KeyNPlusOne:
		return "N+1 Query Problem"
	case KeyInefficientLoop:
		return "Nested Loop Performance Issue"
	case KeySynchronousIO:
		return "Synchronous I/O Operation"
	case KeyMemoryLeak:
		return "Potential Memory Leak"
	case KeyUnboundedCache:
		return "Unbounded Cache Growth"
	case KeyBlockingOperation:
		return "Blocking Operation Detected"
	case KeyGodClass:
		return "God Class Anti-Pattern"
	case KeyLongMethod:
		return "Long Method Detected"
	case KeyDeepNesting:
		return "Deep Nesting Complexity"
	case KeyDuplicateCode:
		return "Duplicate Code Detected"
	case KeyMagicNumbers:
		return "Magic Numbers Found"
	case KeyCommentedCode:
		return "Commented Out Code"
	case KeySSRF:
		return "Server-Side Request Forgery (SSRF)"
	case KeyRaceCondition:
		return "Race Condition Vulnerability"
	case KeyBufferOverflow:
		return "Buffer Overflow Risk"
	case KeyInsecureDeserialization:
		return "Insecure Deserialization"
	case KeyOpenRedirect:
		return "Open Redirect Vulnerability"
	case KeyMemoryOptimization:
		return "Potential Memory Optimization Opportunity"
	case KeyDataValidationMissing:
		return "Missing Input Data Validation"
	case KeyAsyncAwaitMissing:
		return "Consider Using Async/Await Pattern"
	case KeyResourceCleanupMissing:
		return "Missing Resource Cleanup"
	case KeyTightCoupling:
		return "Tight Coupling Detected"
	case KeyMissingDependencyInjection:
		return "Consider Dependency Injection"
	case KeyCircularDependencyRisk:
		return "Potential Circular Dependency"
	default:
		return fallbackTitle(cat)
	}
}

// Description resolves the finding description for a rule. Unknown keys fall
// back to a category-level description, which is never empty.
func Description(cat model.Category, key Key) string {
	switch key {
	case KeyHardcodedSecret:
		return "Sensitive credentials should never be hardcoded. Use environment variables or secure vaults."
	case KeySQLInjection:
		return "User input is being concatenated directly into SQL queries. Use parameterized queries instead."
	case KeyXSS:
		return "Unescaped user input is being rendered. This can lead to XSS attacks."
	case KeyWeakCrypto:
		return "Weak cryptographic algorithms are vulnerable to attacks. Use strong algorithms like SHA-256 or AES."
	case KeyInsecureRandom:
		return "Math.random() is not cryptographically secure. Use SecureRandom or crypto.randomBytes()."
	case KeyCommandInjection:
		return "User input is being passed to system commands. Sanitize and validate all inputs."
	case KeyPathTraversal:
		return "Path traversal sequences detected. Validate and sanitize file paths."
	case KeyXXE:
		return "XML processing is vulnerable to XXE attacks. Disable external entity processing."
	case KeyNPlusOne:
		return "Database queries inside loops can cause N+1 problems. Use batch loading or joins."
	case KeyInefficientLoop:
		return "Nested loops detected. Consider optimizing algorithm complexity."
	case KeySynchronousIO:
		return "Synchronous I/O blocks the thread. Use asynchronous operations."
	case KeyMemoryLeak:
		return "Event listeners or intervals without cleanup can cause memory leaks."
	case KeyUnboundedCache:
		return "Cache without size limits can cause memory issues. Implement cache eviction."
	case KeyBlockingOperation:
		return "Blocking operations can freeze the application. Use async/await or callbacks."
	case KeyGodClass:
		return "This class is too large. Consider splitting it into smaller, focused classes."
	case KeyLongMethod:
		return "This method is too long. Break it down into smaller, more manageable functions."
	case KeyDeepNesting:
		return "Deep nesting makes code hard to read. Consider extracting methods or early returns."
	case KeyDuplicateCode:
		return "Duplicate code violates DRY principle. Extract common functionality."
	case KeyMagicNumbers:
		return "Magic numbers should be replaced with named constants."
	case KeyCommentedCode:
		return "Remove commented out code. Version control preserves history."
	case KeySSRF:
		return "User-controlled URLs can lead to SSRF attacks. Validate and whitelist URLs."
	case KeyRaceCondition:
		return "Missing proper synchronization can cause race conditions."
	case KeyBufferOverflow:
		return "Unsafe string operations can cause buffer overflows. Use safe functions."
	case KeyInsecureDeserialization:
		return "Deserializing untrusted data is dangerous. Validate input before deserializing."
	case KeyOpenRedirect:
		return "Unvalidated redirects can be exploited. Validate redirect destinations."
	case KeyMemoryOptimization:
		return "Large data structure allocation detected. Consider lazy initialization or streaming."
	case KeyDataValidationMissing:
		return "User input is being used without validation. Always validate and sanitize input data."
	case KeyAsyncAwaitMissing:
		return "Promise-based code could be simplified using async/await for better readability."
	case KeyResourceCleanupMissing:
		return "Resources are allocated but not properly closed. Use try-with-resources or ensure cleanup in finally block."
	case KeyTightCoupling:
		return "Multiple concrete class instantiations detected. Consider using interfaces and dependency injection."
	case KeyMissingDependencyInjection:
		return "Class creates its own dependencies. Use constructor or setter injection for better testability."
	case KeyCircularDependencyRisk:
		return "Multiple cross-imports detected. Review module dependencies to avoid circular references."
	default:
		return fallbackDescription(cat)
	}
}

func fallbackTitle(cat model.Category) string {
	switch cat {
	case model.CategorySecurity:
		return "Security Issue"
	case model.CategoryPerformance:
		return "Performance Issue"
	case model.CategoryCodeQuality:
		return "Code Quality Issue"
	case model.CategoryVulnerability:
		return "Security Vulnerability"
	case model.CategoryAIInsight:
		return "AI Code Insight"
	case model.CategoryArchitecture:
		return "Architecture Issue"
	default:
		return "Code Issue"
	}
}

func fallbackDescription(cat model.Category) string {
	switch cat {
	case model.CategorySecurity:
		return "This is a potential security vulnerability."
	case model.CategoryPerformance:
		return "This may impact application performance."
	case model.CategoryCodeQuality:
		return "This affects code maintainability."
	case model.CategoryVulnerability:
		return "This is a critical security vulnerability."
	case model.CategoryAIInsight:
		return "AI analysis suggests potential improvement in this code."
	case model.CategoryArchitecture:
		return "Architecture pattern issue detected."
	default:
		return "Review this code for potential issues."
	}
}
