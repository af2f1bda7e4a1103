package suggest

import (
	"strings"

	"github.com/ppiankov/patchpilot/internal/model"
)

// RuleBased renders the deterministic multi-section suggestion for a
// finding. Root cause and fix are keyed by exact title; impact and best
// practices by category. Every section has non-empty fallback text.
func RuleBased(f model.Finding) string {
	var b strings.Builder
	b.WriteString("### Professional Analysis\n\n")
	section(&b, "Root Cause", rootCause(f.Title))
	section(&b, "Impact", impact(f.Category))
	section(&b, "Recommended Fix", recommendedFix(f.Title))
	section(&b, "Best Practices", bestPractices(f.Category))
	b.WriteString("**Prevention:**\n")
	b.WriteString(prevention)
	return b.String()
}

func section(b *strings.Builder, name, body string) {
	b.WriteString("**" + name + ":**\n")
	b.WriteString(body)
	b.WriteString("\n\n")
}

func rootCause(title string) string {
	switch title {
	case "Hardcoded Credentials Detected":
		return "Sensitive information is embedded directly in the source code, where anyone with repository access can read it."
	case "SQL Injection Vulnerability":
		return "User input is concatenated into a SQL query without parameterization, so it can change the query's structure."
	case "Cross-Site Scripting (XSS) Vulnerability":
		return "User-controlled data is rendered in the browser without escaping, allowing script injection."
	case "Command Injection Vulnerability":
		return "Input reaches a shell or process invocation, where metacharacters can run arbitrary commands."
	case "N+1 Query Problem":
		return "A query runs once per loop iteration, so database round trips grow with the size of the data."
	case "High Code Complexity Detected":
		return "The code has too many decision points, making it hard to understand, test and maintain."
	case "Long Method Detected":
		return "A single method carries several responsibilities, so changes to one of them risk breaking the others."
	default:
		return "The code violates security, performance, or quality standards."
	}
}

func impact(cat model.Category) string {
	switch cat {
	case model.CategorySecurity, model.CategoryVulnerability:
		return "Critical security risk that could lead to data breaches, unauthorized access, or system compromise."
	case model.CategoryPerformance:
		return "Performance degradation that could impact user experience and system scalability."
	default:
		return "Code maintainability issues that increase technical debt and development costs."
	}
}

func recommendedFix(title string) string {
	switch title {
	case "Hardcoded Credentials Detected":
		return "```\n" +
			"// Instead of:\n" +
			"String password = \"hardcoded_password\";\n\n" +
			"// Read it from the environment or a secret manager:\n" +
			"String password = System.getenv(\"DB_PASSWORD\");\n" +
			"```"
	case "SQL Injection Vulnerability":
		return "```\n" +
			"// Instead of:\n" +
			"String query = \"SELECT * FROM users WHERE id = \" + userId;\n\n" +
			"// Use a parameterized query:\n" +
			"PreparedStatement stmt = connection.prepareStatement(\"SELECT * FROM users WHERE id = ?\");\n" +
			"stmt.setString(1, userId);\n" +
			"```"
	case "Cross-Site Scripting (XSS) Vulnerability":
		return "```\n" +
			"// Instead of:\n" +
			"element.innerHTML = userInput;\n\n" +
			"// Assign text, which the browser never parses as markup:\n" +
			"element.textContent = userInput;\n" +
			"```"
	case "N+1 Query Problem":
		return "```\n" +
			"// Instead of querying inside the loop:\n" +
			"for (User user : users) { orders.findByUserId(user.getId()); }\n\n" +
			"// Load everything in one batch:\n" +
			"Map<Long, List<Order>> byUser = orders.findByUserIdIn(userIds);\n" +
			"```"
	default:
		return "Review and refactor the code following industry best practices and security guidelines."
	}
}

func bestPractices(cat model.Category) string {
	var items []string
	switch cat {
	case model.CategorySecurity, model.CategoryVulnerability:
		items = []string{
			"Implement defense in depth with multiple layers of security",
			"Follow the principle of least privilege",
			"Validate and sanitize all user inputs",
			"Use security headers and content security policies",
			"Audit dependencies and update them regularly",
		}
	case model.CategoryPerformance:
		items = []string{
			"Profile before optimizing",
			"Use caching strategically",
			"Paginate large datasets",
			"Monitor performance metrics in production",
			"Prefer asynchronous I/O on hot paths",
		}
	default:
		items = []string{
			"Follow SOLID principles",
			"Write unit tests for critical logic",
			"Keep functions small and focused",
			"Use meaningful variable and function names",
			"Document complex business logic",
		}
	}
	return "• " + strings.Join(items, "\n• ")
}

const prevention = "1. Enable static code analysis in your CI/CD pipeline\n" +
	"2. Conduct regular code reviews with security focus\n" +
	"3. Use pre-commit hooks to catch issues early\n" +
	"4. Maintain a security checklist for developers\n" +
	"5. Provide security training to the development team\n" +
	"6. Use automated dependency scanning tools\n" +
	"7. Implement security testing in the development cycle"
